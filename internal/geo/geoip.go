package geo

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"

	"github.com/oschwald/geoip2-golang"
	gocache "github.com/patrickmn/go-cache"
)

// CityReader is satisfied by *geoip2.Reader.
type CityReader interface {
	City(ip net.IP) (*geoip2.City, error)
}

// IPSource reports the public address of this host.
type IPSource func(ctx context.Context) (net.IP, error)

// EchoIPSource asks a plain-text "what is my IP" endpoint.
func EchoIPSource(url string, client *http.Client) IPSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) (net.IP, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, errors.Mark(err, errors.KindUnavailable, "public ip lookup")
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
		if err != nil {
			return nil, errors.Mark(err, errors.KindUnavailable, "public ip lookup")
		}
		ip := net.ParseIP(strings.TrimSpace(string(body)))
		if ip == nil {
			return nil, errors.Newf(errors.KindUnavailable, "public ip lookup returned %q", body)
		}
		return ip, nil
	}
}

// GeoIPLocator estimates the host position from its public IP. Results are
// cached per address.
type GeoIPLocator struct {
	reader CityReader
	source IPSource
	cache  *gocache.Cache
}

func NewGeoIPLocator(reader CityReader, source IPSource, ttl time.Duration) *GeoIPLocator {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &GeoIPLocator{reader: reader, source: source, cache: gocache.New(ttl, 2*ttl)}
}

// OpenGeoIP opens a MaxMind City database.
func OpenGeoIP(path string) (*geoip2.Reader, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, errors.Mark(err, errors.KindUnavailable, "open geoip database")
	}
	return r, nil
}

func (g *GeoIPLocator) CurrentPosition(ctx context.Context) (domain.Position, error) {
	ip, err := g.source(ctx)
	if err != nil {
		return domain.Position{}, err
	}
	return g.Lookup(ip)
}

func (g *GeoIPLocator) Lookup(ip net.IP) (domain.Position, error) {
	key := ip.String()
	if v, ok := g.cache.Get(key); ok {
		return v.(domain.Position), nil
	}
	record, err := g.reader.City(ip)
	if err != nil {
		return domain.Position{}, errors.Mark(err, errors.KindUnavailable, "geoip lookup")
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return domain.Position{}, errors.Newf(errors.KindUnavailable, "no geoip record for %s", key)
	}
	pos := domain.Position{
		Lat:      record.Location.Latitude,
		Lng:      record.Location.Longitude,
		Accuracy: float64(record.Location.AccuracyRadius) * 1000,
		Address:  cityName(record),
		Source:   "geoip",
		At:       time.Now(),
	}
	g.cache.SetDefault(key, pos)
	return pos, nil
}

func cityName(r *geoip2.City) string {
	city := r.City.Names["en"]
	country := r.Country.Names["en"]
	switch {
	case city != "" && country != "":
		return fmt.Sprintf("%s, %s (approximate)", city, country)
	case country != "":
		return country + " (approximate)"
	}
	return ""
}
