// Package geo resolves client IP addresses to ISO country codes.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Locator looks up countries in a MaxMind GeoIP2/GeoLite2 database. A nil
// *Locator is valid and resolves nothing.
type Locator struct {
	reader *geoip2.Reader
}

// Open loads the .mmdb file at path. Country and City databases both work.
func Open(path string) (*Locator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &Locator{reader: reader}, nil
}

// CountryCode returns the ISO 3166-1 alpha-2 code for ip, or "" when the
// address is malformed, private or unknown to the database.
func (l *Locator) CountryCode(ipAddress string) string {
	if l == nil || l.reader == nil {
		return ""
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return ""
	}

	record, err := l.reader.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (l *Locator) Close() error {
	if l == nil || l.reader == nil {
		return nil
	}
	return l.reader.Close()
}
