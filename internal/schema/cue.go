package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// modelSchema constrains every value under the top-level "model" field.
const modelSchema = `
#Attribute: {
	type?:          "string" | "number" | "boolean" | "json" | "ref"
	columnName?:    string
	columnType?:    string
	unique?:        bool
	required?:      bool
	foreignKey?:    bool
	autoIncrement?: bool
}

#Model: {
	tableName?:       string
	primaryKey:       string | *"id"
	caseInsensitive?: bool
	attributes: [string]: #Attribute
}
`

// CompileCUE reads the models declared under v's "model" field.
// Identities come from the field labels; attributes keep declaration order.
func CompileCUE(v cue.Value) ([]Definition, error) {
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, nil
	}

	def := v.Context().CompileString(modelSchema).LookupPath(cue.ParsePath("#Model"))
	if err := def.Err(); err != nil {
		return nil, cueError(ErrCodeGeneric, err)
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, cueError(ErrCodeInvalidModel, err)
	}
	var defs []Definition
	for iter.Next() {
		d, err := compileModel(iter.Label(), iter.Value().Unify(def))
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func compileModel(identity string, v cue.Value) (Definition, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Definition{}, cueError(ErrCodeInvalidModel, err)
	}
	var d Definition
	if err := v.Decode(&d); err != nil {
		return Definition{}, cueError(ErrCodeInvalidModel, err)
	}
	d.Identity = identity

	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	iter, err := attrsVal.Fields()
	if err != nil {
		return Definition{}, cueError(ErrCodeInvalidModel, err)
	}
	for iter.Next() {
		var a AttributeDefinition
		if err := iter.Value().Decode(&a); err != nil {
			return Definition{}, cueError(ErrCodeInvalidModel, err)
		}
		a.Name = iter.Label()
		d.Attributes = append(d.Attributes, a)
	}
	if len(d.Attributes) == 0 {
		return Definition{}, &Error{
			Code:    ErrCodeInvalidModel,
			Message: fmt.Sprintf("model %s: at least one attribute is required", identity),
			Pos:     v.Pos(),
		}
	}
	return d, nil
}

// compileCUEFile compiles one CUE source.
func compileCUEFile(ctx *cue.Context, name string, src []byte) ([]Definition, error) {
	return CompileCUE(ctx.CompileBytes(src, cue.Filename(name)))
}

// loadCUEPackage builds the CUE package in dir with the cue loader, so
// files of one package may reference each other.
func loadCUEPackage(dir string) ([]Definition, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	return CompileCUE(value)
}
