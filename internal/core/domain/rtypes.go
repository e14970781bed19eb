package domain

import "regexp"

// TypePolicy classifies how the service treats writes to a record type.
type TypePolicy int

const (
	// PolicyOrdinary types are freely writable.
	PolicyOrdinary TypePolicy = iota
	// PolicyDNSSECManaged types are maintained by the service.
	PolicyDNSSECManaged
	// PolicyDNSSECWarn types are writable but usually belong to the
	// service's signing machinery; the UI shows a warning before edits.
	PolicyDNSSECWarn
	// PolicyForbidden types are rejected locally; the server would
	// answer 403.
	PolicyForbidden
)

func (p TypePolicy) String() string {
	switch p {
	case PolicyOrdinary:
		return "ordinary"
	case PolicyDNSSECManaged:
		return "dnssec_managed"
	case PolicyDNSSECWarn:
		return "dnssec_warn"
	case PolicyForbidden:
		return "forbidden"
	}
	return "unknown"
}

// RecordTypeInfo is the catalogue entry for one record type. Pattern, when
// set, is authoritative for per-line validation. HostField marks types
// whose content carries a hostname that must be a FQDN.
type RecordTypeInfo struct {
	Name       string
	Label      string
	FormatHint string
	Example    string
	Tooltip    string
	Pattern    *regexp.Regexp
	Policy     TypePolicy
	HostField  bool
}

// Writable reports whether the service accepts mutations for the type.
func (i RecordTypeInfo) Writable() bool { return i.Policy != PolicyForbidden }

var (
	reIPv4     = regexp.MustCompile(`^((25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])\.){3}(25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])$`)
	reIPv6     = regexp.MustCompile(`^[0-9A-Fa-f]{0,4}(:[0-9A-Fa-f]{0,4}){1,7}$`)
	reHostname = regexp.MustCompile(`^[A-Za-z0-9_*]([A-Za-z0-9._-]*[A-Za-z0-9_])?\.$|^\.$`)
	rePrefHost = regexp.MustCompile(`^[0-9]+ \S+\.$`)
	reQuoted   = regexp.MustCompile(`^"([^"\\]|\\.)*"( "([^"\\]|\\.)*")*$`)
	reCAA      = regexp.MustCompile(`^[0-9]+ (issue|issuewild|iodef|contactemail|contactphone) ".*"$`)
	reCERT     = regexp.MustCompile(`^[0-9]+ [0-9]+ [0-9]+ [A-Za-z0-9+/=]+$`)
	reBase64   = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
	reDNSKEY   = regexp.MustCompile(`^[0-9]+ 3 [0-9]+ [A-Za-z0-9+/=]+$`)
	reDS       = regexp.MustCompile(`^[0-9]+ [0-9]+ [1-4] [0-9A-Fa-f]+$`)
	reEUI48    = regexp.MustCompile(`^([0-9A-Fa-f]{2}-){5}[0-9A-Fa-f]{2}$`)
	reEUI64    = regexp.MustCompile(`^([0-9A-Fa-f]{2}-){7}[0-9A-Fa-f]{2}$`)
	reHINFO    = regexp.MustCompile(`^"[^"]*" "[^"]*"$`)
	reSVCB     = regexp.MustCompile(`^[0-9]+ \S+( .+)?$`)
	reL32      = regexp.MustCompile(`^[0-9]+ ((25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])\.){3}(25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])$`)
	reL64      = regexp.MustCompile(`^[0-9]+ [0-9A-Fa-f]{1,4}(:[0-9A-Fa-f]{1,4}){3}$`)
	reLOC      = regexp.MustCompile(`^[0-9]+( [0-9]+)?( [0-9]+(\.[0-9]+)?)? [NS] [0-9]+( [0-9]+)?( [0-9]+(\.[0-9]+)?)? [EW] -?[0-9]+(\.[0-9]+)?m?( [0-9]+(\.[0-9]+)?m?){0,3}$`)
	reNAPTR    = regexp.MustCompile(`^[0-9]+ [0-9]+ "[SAUPsaup]?" "[^"]*" "[^"]*" \S+$`)
	reRP       = regexp.MustCompile(`^\S+\. \S+\.$`)
	reSMIMEA   = regexp.MustCompile(`^[0-3] [0-1] [0-2] [0-9A-Fa-f]+$`)
	reSRV      = regexp.MustCompile(`^[0-9]+ [0-9]+ [0-9]+ \S+\.$`)
	reSSHFP    = regexp.MustCompile(`^[1-4] [1-2] [0-9A-Fa-f]+$`)
	reAPL      = regexp.MustCompile(`^!?[1-2]:\S+(/[0-9]+)?( !?[1-2]:\S+(/[0-9]+)?)*$`)
	reURI      = regexp.MustCompile(`^[0-9]+ [0-9]+ ".*"$`)
)

// recordTypes is the catalogue of every type the client knows how to
// display and edit, ordered alphabetically. CDS is present but forbidden:
// the service manages it and answers 403 on writes.
var recordTypes = []RecordTypeInfo{
	{Name: "A", Label: "IPv4 address", FormatHint: "IPv4 address", Example: "198.51.100.4",
		Tooltip: "Maps the name to an IPv4 address.", Pattern: reIPv4},
	{Name: "AAAA", Label: "IPv6 address", FormatHint: "IPv6 address", Example: "2001:db8::1",
		Tooltip: "Maps the name to an IPv6 address.", Pattern: reIPv6},
	{Name: "AFSDB", Label: "AFS database", FormatHint: "subtype hostname.", Example: "1 afsdb.example.com.",
		Tooltip: "Location of an AFS cell database server.", Pattern: rePrefHost, HostField: true},
	{Name: "APL", Label: "Address prefix list", FormatHint: "[!]afi:address/prefix ...", Example: "1:192.0.2.0/24",
		Tooltip: "Experimental list of address prefixes.", Pattern: reAPL},
	{Name: "CAA", Label: "Certification authority authorization", FormatHint: `flags tag "value"`, Example: `0 issue "letsencrypt.org"`,
		Tooltip: "Restricts which CAs may issue certificates for the name.", Pattern: reCAA},
	{Name: "CDNSKEY", Label: "Child DNSKEY", FormatHint: "flags 3 algorithm key", Example: "257 3 13 mdsswUyr3DPW132mOi8V9xESWE8jTo0dxCjjnopKl+GqJxpVXckHAeF+KkxLbxILfDLUT0rAK9iUzy1L53eKGQ==",
		Tooltip: "Signals DNSKEY updates to the parent. Managed by the signing machinery; edit with care.", Pattern: reDNSKEY, Policy: PolicyDNSSECWarn},
	{Name: "CDS", Label: "Child DS", FormatHint: "managed by the service", Example: "12345 13 2 1F987CC6583E92DF0890718C42",
		Tooltip: "Published automatically from the zone's keys; not writable.", Pattern: reDS, Policy: PolicyForbidden},
	{Name: "CERT", Label: "Certificate", FormatHint: "type keytag algorithm certificate", Example: "4 0 0 TUlJQm9UQ0NBUW",
		Tooltip: "Stores a certificate or CRL.", Pattern: reCERT},
	{Name: "CNAME", Label: "Canonical name", FormatHint: "hostname.", Example: "www.example.com.",
		Tooltip: "Aliases this name to another. No other types may exist alongside it.", Pattern: reHostname, HostField: true},
	{Name: "DHCID", Label: "DHCP identifier", FormatHint: "base64 data", Example: "AAIBY2/AuCccgoJbsaxcQc9TUapptP69lOjxfNuVAA2kjEA=",
		Tooltip: "Associates the name with a DHCP client.", Pattern: reBase64},
	{Name: "DLV", Label: "DNSSEC lookaside validation", FormatHint: "keytag algorithm digesttype digest", Example: "12345 13 2 1F987CC6583E92DF0890718C42",
		Tooltip: "Historic lookaside trust anchor. Deprecated at the DNS layer.", Pattern: reDS},
	{Name: "DNAME", Label: "Delegation name", FormatHint: "hostname.", Example: "example.net.",
		Tooltip: "Redirects an entire subtree to another domain.", Pattern: reHostname, HostField: true},
	{Name: "DNSKEY", Label: "DNS key", FormatHint: "flags 3 algorithm key", Example: "257 3 13 mdsswUyr3DPW132mOi8V9xESWE8jTo0dxCjjnopKl+GqJxpVXckHAeF+KkxLbxILfDLUT0rAK9iUzy1L53eKGQ==",
		Tooltip: "Public key for DNSSEC validation. The service manages its own keys; edit with care.", Pattern: reDNSKEY, Policy: PolicyDNSSECWarn},
	{Name: "DS", Label: "Delegation signer", FormatHint: "keytag algorithm digesttype digest", Example: "12345 13 2 1F987CC6583E92DF0890718C42",
		Tooltip: "Secure delegation digest for a child zone. Edit with care.", Pattern: reDS, Policy: PolicyDNSSECWarn},
	{Name: "EUI48", Label: "EUI-48 address", FormatHint: "xx-xx-xx-xx-xx-xx", Example: "00-0a-95-9d-68-16",
		Tooltip: "48-bit extended unique identifier.", Pattern: reEUI48},
	{Name: "EUI64", Label: "EUI-64 address", FormatHint: "xx-xx-xx-xx-xx-xx-xx-xx", Example: "00-25-96-ff-fe-12-34-56",
		Tooltip: "64-bit extended unique identifier.", Pattern: reEUI64},
	{Name: "HINFO", Label: "Host information", FormatHint: `"cpu" "os"`, Example: `"ARM64" "Linux"`,
		Tooltip: "Advertises host CPU and operating system.", Pattern: reHINFO},
	{Name: "HTTPS", Label: "HTTPS binding", FormatHint: "priority target. [params]", Example: `1 . alpn="h2,h3"`,
		Tooltip: "Service binding for HTTPS endpoints.", Pattern: reSVCB},
	{Name: "KX", Label: "Key exchanger", FormatHint: "preference hostname.", Example: "2 kx.example.com.",
		Tooltip: "Key exchange delegation for the name.", Pattern: rePrefHost, HostField: true},
	{Name: "L32", Label: "ILNP locator (32-bit)", FormatHint: "preference IPv4", Example: "10 203.0.113.44",
		Tooltip: "ILNP 32-bit locator value.", Pattern: reL32},
	{Name: "L64", Label: "ILNP locator (64-bit)", FormatHint: "preference locator", Example: "10 2001:db8:1140:1000",
		Tooltip: "ILNP 64-bit locator value.", Pattern: reL64},
	{Name: "LOC", Label: "Location", FormatHint: "d m s N|S d m s E|W alt[m] ...", Example: "51 56 0.123 N 5 54 0.000 E 4.00m 1.00m 10000.00m 10.00m",
		Tooltip: "Geographic location of the name.", Pattern: reLOC},
	{Name: "LP", Label: "ILNP locator pointer", FormatHint: "preference hostname.", Example: "10 l64-subnet.example.com.",
		Tooltip: "Points to L32/L64 records for the name.", Pattern: rePrefHost, HostField: true},
	{Name: "MX", Label: "Mail exchange", FormatHint: "preference hostname.", Example: "10 mail.example.com.",
		Tooltip: "Mail server responsible for the name.", Pattern: rePrefHost, HostField: true},
	{Name: "NAPTR", Label: "Naming authority pointer", FormatHint: `order pref "flags" "service" "regexp" replacement`, Example: `100 50 "s" "z3950+I2L+I2C" "" _z3950._tcp.gatech.edu.`,
		Tooltip: "Rule-based rewriting for dynamic delegation.", Pattern: reNAPTR},
	{Name: "NID", Label: "ILNP node identifier", FormatHint: "preference nodeid", Example: "10 14:4fff:ff20:ee64",
		Tooltip: "ILNP node identifier value.", Pattern: reL64},
	{Name: "NS", Label: "Name server", FormatHint: "hostname.", Example: "ns1.example.com.",
		Tooltip: "Delegates the name to an authoritative server.", Pattern: reHostname, HostField: true},
	{Name: "OPENPGPKEY", Label: "OpenPGP key", FormatHint: "base64 key", Example: "mQENBFnCt9MBCADbp9bcB61ZYEBNS6WieO6eNVqbO1XIvzRI2SbJ1jD0OJDF",
		Tooltip: "OpenPGP public key for the mailbox encoded in the name.", Pattern: reBase64},
	{Name: "PTR", Label: "Pointer", FormatHint: "hostname.", Example: "host.example.com.",
		Tooltip: "Reverse mapping to a canonical name.", Pattern: reHostname, HostField: true},
	{Name: "RP", Label: "Responsible person", FormatHint: "mbox-domain. txt-domain.", Example: "admin.example.com. contact.example.com.",
		Tooltip: "Mailbox and reference for the person responsible.", Pattern: reRP, HostField: true},
	{Name: "SMIMEA", Label: "S/MIME association", FormatHint: "usage selector matching data", Example: "3 1 1 A2C3B4D5E6F7",
		Tooltip: "Binds an S/MIME certificate to the mailbox name.", Pattern: reSMIMEA},
	{Name: "SPF", Label: "Sender policy framework", FormatHint: `"v=spf1 ..."`, Example: `"v=spf1 mx -all"`,
		Tooltip: "Legacy SPF record; prefer TXT.", Pattern: reQuoted},
	{Name: "SRV", Label: "Service locator", FormatHint: "priority weight port target.", Example: "0 5 5060 sip.example.com.",
		Tooltip: "Host and port for a named service.", Pattern: reSRV, HostField: true},
	{Name: "SSHFP", Label: "SSH fingerprint", FormatHint: "algorithm fptype fingerprint", Example: "4 2 123456789ABCDEF67890123456789ABCDEF67890123456789ABCDEF123456789",
		Tooltip: "Fingerprint of the host's SSH key.", Pattern: reSSHFP},
	{Name: "SVCB", Label: "Service binding", FormatHint: "priority target. [params]", Example: "1 svc.example.net.",
		Tooltip: "General service binding record.", Pattern: reSVCB},
	{Name: "TLSA", Label: "TLS association", FormatHint: "usage selector matching data", Example: "3 1 1 0C72AC70B745AC19998811B131D662C9AC69DBDBE7CB23E5B514B56664C5D3D6",
		Tooltip: "Binds a TLS certificate to the service name (DANE).", Pattern: reSMIMEA},
	{Name: "TXT", Label: "Text", FormatHint: `"text"`, Example: `"hello"`,
		Tooltip: "Free-form text, quoted. Multiple quoted strings are concatenated.", Pattern: reQuoted},
	{Name: "URI", Label: "URI", FormatHint: `priority weight "target"`, Example: `10 1 "https://example.com/"`,
		Tooltip: "Maps the name to a URI.", Pattern: reURI},
}

var recordTypeIndex = func() map[string]RecordTypeInfo {
	m := make(map[string]RecordTypeInfo, len(recordTypes))
	for _, t := range recordTypes {
		m[t.Name] = t
	}
	return m
}()

// LookupRecordType returns the catalogue entry for a type name.
func LookupRecordType(name string) (RecordTypeInfo, bool) {
	t, ok := recordTypeIndex[name]
	return t, ok
}

// RecordTypeNames lists every writable type in catalogue order.
func RecordTypeNames() []string {
	names := make([]string, 0, len(recordTypes))
	for _, t := range recordTypes {
		if t.Writable() {
			names = append(names, t.Name)
		}
	}
	return names
}

// RecordTypeCatalogue returns the full catalogue, forbidden entries
// included, for UI pickers that want to grey them out.
func RecordTypeCatalogue() []RecordTypeInfo {
	out := make([]RecordTypeInfo, len(recordTypes))
	copy(out, recordTypes)
	return out
}
