package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hazyhaar/prowl/scan"
)

// exportView writes the scan results to dir as prowl_<username>_<ts>.<ext>
// and returns the file path. Format is "json" or "csv".
func exportView(view scan.View, format, dir string, now time.Time) (string, error) {
	var ext string
	switch format {
	case "json":
		ext = "json"
	case "csv":
		ext = "csv"
	default:
		return "", fmt.Errorf("prowl: unknown export format %q", format)
	}

	name := fmt.Sprintf("prowl_%s_%s.%s", view.Username, now.Format("20060102_150405"), ext)
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("prowl: create export file: %w", err)
	}
	defer f.Close()

	switch format {
	case "json":
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			return "", fmt.Errorf("prowl: write export: %w", err)
		}
	case "csv":
		if err := writeCSV(f, view); err != nil {
			return "", fmt.Errorf("prowl: write export: %w", err)
		}
	}
	return path, nil
}

func writeCSV(f *os.File, view scan.View) error {
	w := csv.NewWriter(f)
	if err := w.Write([]string{"provider", "status", "url", "http_status", "elapsed_ms", "error", "profile"}); err != nil {
		return err
	}
	for _, res := range view.Results {
		var profile string
		if len(res.Profile) > 0 {
			if b, err := json.Marshal(res.Profile); err == nil {
				profile = string(b)
			}
		}
		httpStatus := ""
		if res.HTTPStatus != 0 {
			httpStatus = strconv.Itoa(res.HTTPStatus)
		}
		if err := w.Write([]string{
			res.Provider,
			string(res.Status),
			res.URL,
			httpStatus,
			strconv.FormatInt(res.ElapsedMS, 10),
			res.Error,
			profile,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
