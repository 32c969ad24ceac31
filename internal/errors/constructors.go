package errors

// Convenience functions for common error patterns

// Config and catalog errors

func ConfigNotFound(path string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func CatalogMalformed(path string, cause error) *PipelineError {
	return Wrap(cause, CategoryCatalog, SeverityFatal, "package catalog is malformed").
		WithContext("path", path)
}

func CatalogMissingField(pkg, field string) *PipelineError {
	return New(CategoryCatalog, SeverityFatal, "catalog entry missing required field").
		WithContext("package", pkg).
		WithContext("field", field)
}

func CatalogDuplicate(name, registry string) *PipelineError {
	return New(CategoryCatalog, SeverityFatal, "duplicate package identity in catalog").
		WithContext("package", name).
		WithContext("registry", registry)
}

// Prebuilt page errors

func TemplateMarkersNotFound(path, begin, end string) *PipelineError {
	return New(CategoryTemplate, SeverityFatal, "generated-region markers not found in destination page").
		WithContext("path", path).
		WithContext("begin", begin).
		WithContext("end", end)
}

// Registry and stats errors

func RegistryUnknown(scheme string) *PipelineError {
	return New(CategoryRegistry, SeverityFatal, "unknown registry scheme").
		WithContext("scheme", scheme)
}

func StatsQueryFailed(pkg string, cause error) *PipelineError {
	return Wrap(cause, CategoryRegistry, SeverityWarning, "download-stats query failed").
		WithContext("package", pkg)
}

func StoreError(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryStore, SeverityFatal, "stats store operation failed").
		WithContext("operation", operation)
}

// Sync job errors

func SyncFetchFailed(source string, cause error) *PipelineError {
	return Wrap(cause, CategorySync, SeverityError, "snapshot fetch failed").
		WithContext("source", source)
}

func SyncNoEntries(source, selector string) *PipelineError {
	return New(CategorySync, SeverityWarning, "snapshot yielded no entries matching selector").
		WithContext("source", source).
		WithContext("selector", selector)
}

// Filesystem errors

func FileWriteError(path string, cause error) *PipelineError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "file write failed").
		WithContext("path", path)
}
