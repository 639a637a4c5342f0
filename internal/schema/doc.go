// Package schema loads model definitions into a model.Registry.
//
// Models are declared in CUE or YAML. A CUE file declares models under the
// top-level "model" field, keyed by identity, with attributes keyed by name
// in declaration order:
//
//	model: user: {
//		tableName:  "users"
//		primaryKey: "id"
//		attributes: {
//			id:    {type: "number", autoIncrement: true}
//			email: {type: "string", unique: true, columnName: "email_address"}
//		}
//	}
//
// Every CUE model is checked against the #Model definition before it is
// read, so misspelled fields and unknown types fail with a position.
//
// A YAML file lists models under "models":
//
//	models:
//	  - identity: user
//	    tableName: users
//	    attributes:
//	      - {name: id, type: number, autoIncrement: true}
//	      - {name: email, unique: true}
//
// A directory may mix both formats; every model from every file lands in
// one registry.
package schema
