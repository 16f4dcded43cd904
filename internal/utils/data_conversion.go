package utils

// Pointer helpers for optional fields

func Float64Ptr(f float64) *float64 {
	return &f
}

func IntPtr(i int) *int {
	return &i
}

func StringPtr(s string) *string {
	return &s
}

func StringPtrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
