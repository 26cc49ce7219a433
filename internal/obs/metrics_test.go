package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/documents/01ABC":                "/v1/documents/:id",
		"/v1/documents/01ABC/transitions":    "/v1/documents/:id/transitions",
		"/v1/documents/01ABC/comments":       "/v1/documents/:id/comments",
		"/v1/documents?branch=1061":          "/v1/documents",
		"/v1/roles/01XYZ/permissions":        "/v1/roles/:id/permissions",
		"/v1/disbursements/confirm":          "/v1/disbursements/confirm",
		"/v1/documents/01ABC/files/01DEF":    "/v1/documents/:id/files/:file_id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q) = %q, want %q", input, got, expected)
		}
	}
}
