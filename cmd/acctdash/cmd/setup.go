package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/usernameweb/acctdash/internal/config"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/query"
)

// newClassifier builds the duration classifier from [display].
func newClassifier(c *config.Config) (*duration.Classifier, error) {
	locale, err := duration.LookupLocale(c.Display.Locale)
	if err != nil {
		return nil, err
	}
	opts := []duration.Option{duration.WithLocale(locale)}
	if c.Display.Timezone != "" {
		loc, err := time.LoadLocation(c.Display.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", c.Display.Timezone, err)
		}
		opts = append(opts, duration.WithLocation(loc))
	}
	return duration.New(opts...), nil
}

// exportProfile maps [export] onto the XLSX schema constants. Unset keys
// keep the defaults.
func exportProfile(c *config.Config) export.Profile {
	p := export.DefaultProfile
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.Platform, c.Export.Platform)
	set(&p.CookieDomain, c.Export.CookieDomain)
	set(&p.CountryCode, c.Export.CountryCode)
	set(&p.ProxyType, c.Export.ProxyType)
	set(&p.IPChecker, c.Export.IPChecker)
	set(&p.FilePrefix, c.Export.FilePrefix)
	return p
}

// exportDestination returns the configured destination: a local directory
// (the default) or an S3 bucket.
func exportDestination(ctx context.Context, c *config.Config) (export.Destination, error) {
	switch strings.ToLower(c.Export.Destination) {
	case "", "dir":
		return export.DirDestination{Dir: c.ExportsDir()}, nil
	case "s3":
		return export.NewS3Destination(ctx, export.S3Config{
			Bucket:    c.S3.Bucket,
			Region:    c.S3.Region,
			Prefix:    c.S3.Prefix,
			Endpoint:  c.S3.Endpoint,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
		})
	}
	return nil, fmt.Errorf("unknown export destination %q (want dir or s3)", c.Export.Destination)
}

// filterFlags are the grid filters shared by list and export.
type filterFlags struct {
	search   string
	group    string
	tag      string
	duration string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.search, "search", "", "case-insensitive substring of username, email, group or tag")
	cmd.Flags().StringVar(&f.group, "group", "", "exact group")
	cmd.Flags().StringVar(&f.tag, "tag", "", "exact tag")
	cmd.Flags().StringVar(&f.duration, "duration", "", "age bucket: 0, 1, 2-7, 8-30, 31-365 or 365+")
}

// state applies the flags through the grid's setters.
func (f *filterFlags) state(pageSize int) (query.FilterState, error) {
	st := query.NewFilterState(pageSize)
	st.SetSearch(f.search)
	st.SetGroup(f.group)
	st.SetTag(f.tag)
	b, err := duration.ParseBucket(f.duration)
	if err != nil {
		return st, err
	}
	st.SetDuration(b)
	return st, nil
}

// parseIDs parses account ID arguments. Duplicates are dropped.
func parseIDs(args []string) ([]int64, error) {
	seen := make(map[int64]bool, len(args))
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid account ID %q", part)
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// redactDSN hides the password of a database URL. File paths pass through.
func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "<invalid database url>"
	}
	return u.Redacted()
}
