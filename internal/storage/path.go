package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// TablePrefix is the key prefix holding every data file of dataset.table.
func TablePrefix(datasetID, tableName string) (string, error) {
	if err := validatePathComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return path.Join(datasetID, tableName) + "/", nil
}

// ParseTableFileKey splits a lake key of the form
// <dataset>/<table>/[partition dirs/]<file>.parquet. Keys that do not follow
// the layout report ok == false.
func ParseTableFileKey(key string) (datasetID, tableName string, ok bool) {
	key = strings.TrimPrefix(key, "/")
	if !strings.HasSuffix(strings.ToLower(key), ".parquet") {
		return "", "", false
	}
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return "", "", false
	}
	datasetID, tableName = parts[0], parts[1]
	if validatePathComponent(datasetID, "dataset id") != nil || validatePathComponent(tableName, "table name") != nil {
		return "", "", false
	}
	return datasetID, tableName, true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
