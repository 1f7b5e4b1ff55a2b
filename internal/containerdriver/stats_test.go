package containerdriver

import "testing"

func TestParseSizeToBytes(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"123kB", 123000, true},
		{"12.3MiB", 12897484, true},
		{"1.2GiB", 1288490188, true},
		{"0B", 0, true},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseSizeToBytes(tc.in)
		if ok != tc.ok {
			t.Errorf("parseSizeToBytes(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("parseSizeToBytes(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseSizeToMB(t *testing.T) {
	got, ok := parseSizeToMB("10MiB")
	if !ok || got != 10 {
		t.Errorf("parseSizeToMB(10MiB) = %v, %v, want 10, true", got, ok)
	}
}
