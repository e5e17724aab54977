package xmppcore

import (
	"context"
	"net"
	"strconv"
	"strings"
)

// ServerResolver returns a list of server addresses to try, called before
// each connection attempt to enable dynamic service discovery. Addresses
// are in URI format: scheme://host:port (e.g., "tcp://xmpp.example.org:5222").
type ServerResolver func(ctx context.Context) ([]string, error)

// SRVResolver resolves XMPP servers for the account domain via DNS SRV
// (_xmpp-client._tcp), the standard client connection discovery. Records
// come back ordered by priority with weight-based shuffling applied by the
// resolver. When no SRV records exist, the domain itself on the default
// port is the fallback.
func SRVResolver(domain string) ServerResolver {
	return func(ctx context.Context) ([]string, error) {
		_, records, err := net.DefaultResolver.LookupSRV(ctx, "xmpp-client", "tcp", domain)
		if err != nil || len(records) == 0 {
			return []string{"tcp://" + net.JoinHostPort(domain, DefaultPort)}, nil
		}

		addrs := make([]string, 0, len(records))
		for _, rec := range records {
			target := strings.TrimSuffix(rec.Target, ".")
			if target == "" {
				// A single "." target means the service is decidedly not
				// available at this domain.
				continue
			}
			addrs = append(addrs, "tcp://"+net.JoinHostPort(target, strconv.Itoa(int(rec.Port))))
		}
		if len(addrs) == 0 {
			return []string{"tcp://" + net.JoinHostPort(domain, DefaultPort)}, nil
		}
		return addrs, nil
	}
}
