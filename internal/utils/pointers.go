package utils

func IntPtr(i int) *int {
	return &i
}

func StringPtr(s string) *string {
	return &s
}

// NonEmptyStringPtr returns nil for the empty string.
func NonEmptyStringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func PtrString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
