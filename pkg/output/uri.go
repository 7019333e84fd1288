package output

import (
	"fmt"
	"strings"
)

// ParseURI splits a channel URI of the form <scheme>:<topic>@<host1>,<host2>,…
// into its parts. Hosts is nil when the URI carries no "@host,host" suffix,
// which built-in outputs (fake, counter) don't require.
func ParseURI(uri string) (scheme, topic string, hosts []string, err error) {
	schemeSep := strings.IndexByte(uri, ':')
	if schemeSep < 0 {
		return "", "", nil, fmt.Errorf("output: malformed URI %q: missing scheme", uri)
	}
	scheme = uri[:schemeSep]
	rest := uri[schemeSep+1:]

	if at := strings.IndexByte(rest, '@'); at >= 0 {
		topic = rest[:at]
		hosts = strings.Split(rest[at+1:], ",")
	} else {
		topic = rest
	}
	if topic == "" {
		return "", "", nil, fmt.Errorf("output: malformed URI %q: missing topic", uri)
	}
	return scheme, topic, hosts, nil
}
