package anonymize

import "strings"

// ParseNames splits a comma-separated names field, trims every piece and
// drops the empty ones. Order, duplicates and casing are kept. The result is
// never nil so it encodes as [] rather than null.
func ParseNames(field string) []string {
	names := make([]string, 0)
	for _, part := range strings.Split(field, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// BuildRequest turns a form snapshot into the request sent to /anonymize.
func BuildRequest(in Inputs) AnonymizationRequest {
	return AnonymizationRequest{
		RawData:   in.Text,
		NamesList: ParseNames(in.Names),
		Options:   in.Options,
	}
}
