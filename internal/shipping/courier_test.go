package shipping

import "testing"

func TestResolveCourier(t *testing.T) {
	tests := []struct {
		method string
		want   Courier
		ok     bool
	}{
		{"J&T Reguler", CourierJNT, true},
		{"j&t express", CourierJNT, true},
		{"JNE REG", CourierJNE, true},
		{"jne", CourierJNE, true},
		{"Gojek", Courier{}, false},
		{"", Courier{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, ok := ResolveCourier(tt.method)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"08123456789", "628123456789"},
		{"628123456789", "628123456789"},
		{"8123456789", "628123456789"},
		{"+62 812-3456-789", "628123456789"},
		{"081234", "6281234"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePhone(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
