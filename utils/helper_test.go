package utils

import "testing"

func TestValidatePhoneNumber(t *testing.T) {
	cases := []struct {
		name    string
		phone   string
		country string
		wantErr bool
	}{
		{"german mobile with prefix", "+49 170 1234567", "DE", false},
		{"german mobile national form", "0170 1234567", "DE", false},
		{"us number with prefix", "+1 650 253 0000", "DE", false},
		{"too short", "12345", "DE", true},
		{"letters", "not-a-phone", "DE", true},
		{"empty", "", "DE", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tc.phone, tc.country)
			if tc.wantErr && err == nil {
				t.Fatalf("expected %q to be rejected", tc.phone)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected %q to be accepted, got %v", tc.phone, err)
			}
		})
	}
}
