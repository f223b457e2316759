package identity

import "testing"

func TestResolve(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want Role
	}{
		{"plain lowercase", Record{Role: "doctor"}, Doctor},
		{"plain uppercase", Record{Role: "DOCTOR"}, Doctor},
		{"namespace prefix", Record{Role: "ROLE_DOCTOR"}, Doctor},
		{"patient", Record{Role: "patient"}, Patient},
		{"prefixed patient", Record{Role: "ROLE_PATIENT"}, Patient},
		{"userRole fallback", Record{UserRole: "doctor"}, Doctor},
		{"type fallback", Record{Type: "ROLE_PATIENT"}, Patient},
		{"authorities fallback", Record{Authorities: []string{"ROLE_DOCTOR", "ROLE_ADMIN"}}, Doctor},
		{"role wins over type", Record{Role: "doctor", Type: "patient"}, Doctor},
		{"whitespace only falls through", Record{Role: "  ", UserRole: "patient"}, Patient},
		{"empty record assumes baseline", Record{ID: "u1"}, Patient},
		{"unrecognized maps to other", Record{Role: "ROLE_ADMIN"}, Other},
		{"garbage maps to other", Record{Role: "wizard"}, Other},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(tc.rec); got != tc.want {
				t.Fatalf("Resolve(%+v) = %s, want %s", tc.rec, got, tc.want)
			}
		})
	}
}

func TestResolveCaseAndPrefixInvariant(t *testing.T) {
	a := Resolve(Record{Role: "ROLE_DOCTOR"})
	b := Resolve(Record{Role: "doctor"})
	c := Resolve(Record{Role: "Doctor"})
	if a != b || b != c || a != Doctor {
		t.Fatalf("expected all variants to resolve to DOCTOR, got %s/%s/%s", a, b, c)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(Record{Name: "Dr. Mehta"}); got != "Dr. Mehta" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayName(Record{Email: "asha@example.org"}); got != "asha" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayName(Record{ID: "u42"}); got != "u42" {
		t.Fatalf("got %q", got)
	}
}
