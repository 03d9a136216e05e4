package errors

// Convenience constructors for the common failure shapes.

// Hierarchy and package structure

func StructuralError(message string) *Error {
	return New(KindStructural, message)
}

func InvalidPackage(reason string) *Error {
	return New(KindInvalidPackage, "package layout not recognized").
		WithContext("reason", reason)
}

func IncompatiblePackage(packageVersion, systemVersion string) *Error {
	return New(KindIncompatiblePackage, "package framework major version differs from running system").
		WithContext("package_version", packageVersion).
		WithContext("system_version", systemVersion)
}

// Plugin resolution

func MissingDependency(plugin, requiredBy string) *Error {
	return New(KindMissingDependency, "required plugin cannot be found").
		WithContext("plugin", plugin).
		WithContext("required_by", requiredBy)
}

func IncompatibleDependency(plugin, installed, required string) *Error {
	return New(KindIncompatibleDependency, "installed plugin version cannot satisfy required range").
		WithContext("plugin", plugin).
		WithContext("installed", installed).
		WithContext("required", required)
}

// Items and schemas

func ValidationError(itemID, schemaName, reason string) *Error {
	return New(KindValidation, "item failed schema validation").
		WithContext("item_id", itemID).
		WithContext("schema", schemaName).
		WithContext("reason", reason)
}

func NotFound(what, id string) *Error {
	return New(KindNotFound, what+" not found").WithContext("id", id)
}

// Infrastructure

func ExternalToolError(command string, exitCode int, output string, cause error) *Error {
	return Wrap(cause, KindExternalTool, "external compiler exited with an error").
		WithContext("command", command).
		WithContext("exit_code", exitCode).
		WithContext("output", output)
}

func IOError(operation string, cause error) *Error {
	return Wrap(cause, KindIO, "filesystem operation failed").
		WithContext("operation", operation)
}
