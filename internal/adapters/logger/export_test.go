// export_test.go exports private functions for white-box testing.
package logger

// ErrorReport renders err the way Logger.Error does in pretty mode.
func ErrorReport(err error) string {
	return formatErrorEntries(collectErrorEntries(err))
}
