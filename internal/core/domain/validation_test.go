package domain

import (
	"strings"
	"testing"
)

// Every writable catalogue entry must accept its own example and reject
// the empty string.
func TestCatalogueExamplesValidate(t *testing.T) {
	for _, info := range RecordTypeCatalogue() {
		if !info.Writable() {
			continue
		}
		if verr := ValidateRRset(info.Name, 3600, []string{info.Example}); verr != nil {
			t.Errorf("%s: canonical example %q rejected: %v", info.Name, info.Example, verr)
		}
		if verr := ValidateRRset(info.Name, 3600, []string{""}); verr == nil {
			t.Errorf("%s: empty value accepted", info.Name)
		}
	}
}

func TestCatalogueShape(t *testing.T) {
	if got := len(RecordTypeNames()); got != 37 {
		t.Fatalf("writable type count = %d, want 37", got)
	}
	cds, ok := LookupRecordType("CDS")
	if !ok {
		t.Fatal("CDS missing from catalogue")
	}
	if cds.Policy != PolicyForbidden {
		t.Errorf("CDS policy = %v, want forbidden", cds.Policy)
	}
	for _, name := range []string{"DNSKEY", "DS", "CDNSKEY"} {
		info, ok := LookupRecordType(name)
		if !ok {
			t.Fatalf("%s missing from catalogue", name)
		}
		if info.Policy != PolicyDNSSECWarn {
			t.Errorf("%s policy = %v, want dnssec_warn", name, info.Policy)
		}
	}
	if _, ok := LookupRecordType("RRSIG"); ok {
		t.Error("RRSIG must not be in the catalogue")
	}
}

func TestValidateRRsetTTLBounds(t *testing.T) {
	verr := ValidateRRset("A", 60, []string{"1.2.3.4"})
	if verr == nil {
		t.Fatal("ttl 60 accepted")
	}
	if verr.Index != 0 || verr.Reason != "ttl<3600" {
		t.Errorf("got %+v, want index 0 reason ttl<3600", verr)
	}
	if verr := ValidateRRset("A", 90000, []string{"1.2.3.4"}); verr == nil || verr.Reason != "ttl>86400" {
		t.Errorf("ttl 90000: got %+v", verr)
	}
	if verr := ValidateRRset("A", 3600, []string{"1.2.3.4"}); verr != nil {
		t.Errorf("ttl 3600 rejected: %v", verr)
	}
	if verr := ValidateRRset("A", 86400, []string{"1.2.3.4"}); verr != nil {
		t.Errorf("ttl 86400 rejected: %v", verr)
	}
}

func TestValidateRRsetPerLine(t *testing.T) {
	verr := ValidateRRset("A", 3600, []string{"1.2.3.4", "not-an-ip"})
	if verr == nil {
		t.Fatal("malformed second line accepted")
	}
	if verr.Index != 1 {
		t.Errorf("index = %d, want 1", verr.Index)
	}

	// Values are trimmed before matching.
	if verr := ValidateRRset("A", 3600, []string{"  1.2.3.4  "}); verr != nil {
		t.Errorf("padded value rejected: %v", verr)
	}
}

func TestValidateRRsetFQDN(t *testing.T) {
	cases := []struct {
		typ   string
		value string
		ok    bool
	}{
		{"MX", "10 mail.example.com.", true},
		{"MX", "10 mail.example.com", false},
		{"CNAME", "target.example.com.", true},
		{"CNAME", "target.example.com", false},
		{"SRV", "0 5 5060 sip.example.com.", true},
		{"SRV", "0 5 5060 sip.example.com", false},
		{"NS", "ns1.example.com.", true},
	}
	for _, tc := range cases {
		verr := ValidateRRset(tc.typ, 3600, []string{tc.value})
		if tc.ok && verr != nil {
			t.Errorf("%s %q rejected: %v", tc.typ, tc.value, verr)
		}
		if !tc.ok && verr == nil {
			t.Errorf("%s %q accepted, want FQDN rejection", tc.typ, tc.value)
		}
	}
}

func TestValidateRRsetForbiddenType(t *testing.T) {
	verr := ValidateRRset("CDS", 3600, []string{"12345 13 2 1F987CC6583E92DF0890718C42"})
	if verr == nil {
		t.Fatal("CDS write accepted locally")
	}
	if !strings.Contains(verr.Reason, "managed") {
		t.Errorf("reason %q does not mention the type being managed", verr.Reason)
	}
}

func TestValidateZoneName(t *testing.T) {
	for _, good := range []string{"example.com", "EXAMPLE.com.", "a-b.example.co.uk"} {
		if err := ValidateZoneName(good); err != nil {
			t.Errorf("%q rejected: %v", good, err)
		}
	}
	for _, bad := range []string{"", "nolabel", "bad..dots.com", strings.Repeat("x", 300) + ".com"} {
		if err := ValidateZoneName(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestNormalizeRecords(t *testing.T) {
	got := NormalizeRecords([]string{"  a  ", "", "b", "   "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("NormalizeRecords = %v", got)
	}
}
