package fat32

// debug and warn are thin wrappers that no-op cleanly when a Volume's
// logger is nil, so tests built without WithLogger never dereference a
// nil *slog.Logger.
func (v *Volume) debug(msg string, args ...any) {
	if v.log != nil {
		v.log.Debug(msg, args...)
	}
}

func (v *Volume) warn(msg string, args ...any) {
	if v.log != nil {
		v.log.Warn(msg, args...)
	}
}
