package datarecording

import (
	"fmt"
	"net/url"
	"strings"
)

// Backend names a database kind.
type Backend string

// Supported backends.
const (
	SQLite     Backend = "sqlite"
	MySQL      Backend = "mysql"
	ClickHouse Backend = "clickhouse"
	MongoDB    Backend = "mongodb"
)

// Target is a parsed recorder location.
type Target struct {
	Backend Backend

	// Path is the SQLite file name without the .sqlite3 suffix.
	Path string

	// DSN is the MySQL data source name.
	DSN string

	ClickHouse ClickHouseOptions

	// URI is the MongoDB connection string.
	URI string
}

// ParseTarget parses a recorder location. A location without a scheme is a
// SQLite path. Recognized schemes are sqlite://, mysql://, clickhouse:// and
// mongodb://.
func ParseTarget(raw string) (Target, error) {
	if !strings.Contains(raw, "://") {
		return Target{Backend: SQLite, Path: strings.TrimSuffix(raw, ".sqlite3")}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("recorder location %q: %w", raw, err)
	}

	switch Backend(u.Scheme) {
	case SQLite:
		path := u.Host + u.Path
		return Target{Backend: SQLite, Path: strings.TrimSuffix(path, ".sqlite3")}, nil
	case MySQL:
		host := u.Host
		if u.Port() == "" {
			host += ":3306"
		}

		return Target{
			Backend: MySQL,
			DSN:     fmt.Sprintf("%s@tcp(%s)/", u.User.String(), host),
		}, nil
	case ClickHouse:
		host := u.Host
		if u.Port() == "" {
			host += ":9000"
		}

		password, _ := u.User.Password()
		database := strings.TrimPrefix(u.Path, "/")
		if database == "" {
			database = "default"
		}

		return Target{
			Backend: ClickHouse,
			ClickHouse: ClickHouseOptions{
				Addr:     host,
				Database: database,
				Username: u.User.Username(),
				Password: password,
			},
		}, nil
	case MongoDB:
		return Target{Backend: MongoDB, URI: raw}, nil
	default:
		return Target{}, fmt.Errorf("recorder location %q: unknown scheme %q",
			raw, u.Scheme)
	}
}

// Open parses a recorder location and connects to it.
func Open(raw string) (DataRecorder, error) {
	target, err := ParseTarget(raw)
	if err != nil {
		return nil, err
	}

	switch target.Backend {
	case MySQL:
		return NewMySQL(target.DSN), nil
	case ClickHouse:
		return NewClickHouseRecorder(target.ClickHouse), nil
	case MongoDB:
		return NewMongoDBRecorder(target.URI), nil
	default:
		return New(target.Path), nil
	}
}

var (
	_ DataRecorder = (*sqlWriter)(nil)
	_ DataRecorder = (*ClickHouseRecorder)(nil)
	_ DataRecorder = (*MongoDBRecorder)(nil)
)
