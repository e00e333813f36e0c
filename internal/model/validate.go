package model

// ValidateEntrySession checks structural invariants on a session record.
func ValidateEntrySession(s *EntrySession) error {
	if s.WorkerID == "" {
		return ValidationError("worker_id is required")
	}
	if s.SiteID == "" {
		return ValidationError("site_id is required")
	}
	if s.AllowedDurationMinutes <= 0 {
		return ValidationError("allowed_duration_minutes must be positive")
	}
	if !s.Status.IsValid() {
		return Validationf("invalid status %q", s.Status)
	}
	if !s.State.IsValid() {
		return Validationf("invalid state %q", s.State)
	}
	if s.Status == StatusActive && s.ExitTime != nil {
		return ValidationError("active session must not have an exit time")
	}
	return nil
}

// ValidateGasReading checks a sensor sample before it is appended.
func ValidateGasReading(r *GasReading) error {
	if r.SiteID == "" {
		return ValidationError("site_id is required")
	}
	if r.O2 < 0 || r.O2 > 100 {
		return Validationf("o2 %.1f out of range", r.O2)
	}
	for gas, v := range r.Gases {
		if gas == "" {
			return ValidationError("gas key must not be empty")
		}
		if v < 0 {
			return Validationf("gas %s has negative concentration", gas)
		}
	}
	return nil
}
