package scans

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/store"
)

func fullPerms() auth.PermissionSet {
	return auth.PermissionSet{Read: true, Write: true, Delete: true, Admin: true}
}

type scanFixture struct {
	store *Store
	db    *sql.DB
	site  *Site
	url   *URL
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()

	db := store.NewTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	site, err := s.CreateSite(ctx, fullPerms(), &Site{
		Name:       "Example",
		BaseURL:    "https://example.com",
		IsRunnable: true,
	})
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}

	url, err := s.CreateURL(ctx, fullPerms(), &URL{
		SiteID:  site.ID,
		Name:    "Home",
		Address: "https://example.com/",
	})
	if err != nil {
		t.Fatalf("CreateURL failed: %v", err)
	}

	return &scanFixture{store: s, db: db, site: site, url: url}
}

func TestPermissionGating(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	writeOnly := auth.PermissionSet{Write: true}
	readOnly := auth.PermissionSet{Read: true}

	tests := []struct {
		name string
		op   func() error
	}{
		{"list sites without read", func() error {
			_, err := f.store.ListSites(ctx, writeOnly)
			return err
		}},
		{"get site without read", func() error {
			_, err := f.store.GetSite(ctx, writeOnly, f.site.ID)
			return err
		}},
		{"create site without write", func() error {
			_, err := f.store.CreateSite(ctx, readOnly, &Site{Name: "x", BaseURL: "https://x"})
			return err
		}},
		{"update site without write", func() error {
			return f.store.UpdateSite(ctx, readOnly, f.site)
		}},
		{"delete site without delete", func() error {
			return f.store.DeleteSite(ctx, writeOnly, f.site.ID)
		}},
		{"delete url without delete", func() error {
			return f.store.DeleteURL(ctx, writeOnly, f.url.ID)
		}},
		{"record result without write", func() error {
			_, err := f.store.RecordResult(ctx, readOnly, f.url.ID, nil)
			return err
		}},
		{"list issue types without read", func() error {
			_, err := f.store.ListIssueTypes(ctx, auth.PermissionSet{})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, auth.ErrAuthorizationDenied) {
				t.Errorf("error = %v, want ErrAuthorizationDenied", err)
			}
		})
	}

	// Nothing above may have mutated anything
	sites, err := f.store.ListSites(ctx, readOnly)
	if err != nil {
		t.Fatalf("ListSites failed: %v", err)
	}
	if len(sites) != 1 {
		t.Errorf("site count = %d, want 1", len(sites))
	}
}

func TestSiteRoundTrip(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	fetched, err := f.store.GetSite(ctx, fullPerms(), f.site.ID)
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if fetched.Name != "Example" || fetched.BaseURL != "https://example.com" {
		t.Errorf("fetched site = %+v", fetched)
	}

	if _, err := f.store.GetSite(ctx, fullPerms(), "no-such-site"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetSite miss error = %v, want ErrNotFound", err)
	}

	fetched.Name = "Renamed"
	if err := f.store.UpdateSite(ctx, fullPerms(), fetched); err != nil {
		t.Fatalf("UpdateSite failed: %v", err)
	}
	renamed, err := f.store.GetSite(ctx, fullPerms(), f.site.ID)
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if renamed.Name != "Renamed" {
		t.Errorf("name after update = %s", renamed.Name)
	}

	missing := *fetched
	missing.ID = "no-such-site"
	if err := f.store.UpdateSite(ctx, fullPerms(), &missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateSite on missing site error = %v, want ErrNotFound", err)
	}
}

func TestScheduleValidation(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateSite(ctx, fullPerms(), &Site{
		Name:        "Scheduled",
		BaseURL:     "https://example.org",
		IsScheduled: true,
		Schedule:    "not a cron expression",
	})
	if err == nil {
		t.Error("malformed schedule accepted")
	}

	created, err := f.store.CreateSite(ctx, fullPerms(), &Site{
		Name:        "Scheduled",
		BaseURL:     "https://example.org",
		IsScheduled: true,
		Schedule:    "0 3 * * *",
	})
	if err != nil {
		t.Fatalf("CreateSite with valid schedule failed: %v", err)
	}

	// The schedule is only validated when scheduling is on
	created.IsScheduled = false
	created.Schedule = "garbage"
	if err := f.store.UpdateSite(ctx, fullPerms(), created); err != nil {
		t.Errorf("UpdateSite with scheduling off rejected schedule text: %v", err)
	}
}

func TestCreateURLRequiresSite(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.store.CreateURL(context.Background(), fullPerms(), &URL{
		SiteID:  "no-such-site",
		Name:    "Orphan",
		Address: "https://nowhere",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("CreateURL for missing site error = %v, want ErrNotFound", err)
	}
}

func TestRecordResultNormalizesUnknownTypes(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	result, err := f.store.RecordResult(ctx, fullPerms(), f.url.ID, []IssueInput{
		{Code: "WCAG2AA.1_1_1", Message: "missing alt text", TypeCode: IssueTypeError},
		{Code: "WCAG2AA.1_4_3", Message: "low contrast", TypeCode: IssueTypeWarning},
		{Code: "vendor.custom", Message: "from a newer engine", TypeCode: 99},
	})
	if err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}
	if result.SiteID != f.site.ID || result.URLID != f.url.ID {
		t.Errorf("result references = %+v", result)
	}

	issues, err := f.store.ListIssuesForResult(ctx, fullPerms(), result.ID)
	if err != nil {
		t.Fatalf("ListIssuesForResult failed: %v", err)
	}
	if len(issues) != 3 {
		t.Fatalf("issue count = %d, want 3", len(issues))
	}

	byCode := make(map[string]Issue)
	for _, issue := range issues {
		byCode[issue.Code] = issue
	}
	if byCode["WCAG2AA.1_1_1"].TypeCode != IssueTypeError {
		t.Errorf("known error code normalized to %d", byCode["WCAG2AA.1_1_1"].TypeCode)
	}
	if byCode["WCAG2AA.1_4_3"].TypeCode != IssueTypeWarning {
		t.Errorf("known warning code normalized to %d", byCode["WCAG2AA.1_4_3"].TypeCode)
	}
	if byCode["vendor.custom"].TypeCode != IssueTypeUnknown {
		t.Errorf("unknown code 99 stored as %d, want %d", byCode["vendor.custom"].TypeCode, IssueTypeUnknown)
	}
}

func TestRecordResultMissingURL(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.store.RecordResult(context.Background(), fullPerms(), "no-such-url", nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("RecordResult for missing url error = %v, want ErrNotFound", err)
	}
}

func TestDeleteSiteCascades(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	result, err := f.store.RecordResult(ctx, fullPerms(), f.url.ID, []IssueInput{
		{Code: "WCAG2AA.1_1_1", TypeCode: IssueTypeError},
	})
	if err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}

	if err := f.store.DeleteSite(ctx, fullPerms(), f.site.ID); err != nil {
		t.Fatalf("DeleteSite failed: %v", err)
	}

	if _, err := f.store.GetSite(ctx, fullPerms(), f.site.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("site survived deletion, error = %v", err)
	}
	if _, err := f.store.GetURL(ctx, fullPerms(), f.url.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("url survived site deletion, error = %v", err)
	}
	if _, err := f.store.GetResult(ctx, fullPerms(), result.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("result survived site deletion, error = %v", err)
	}

	var orphans int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM issues`).Scan(&orphans); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if orphans != 0 {
		t.Errorf("issue rows after site deletion = %d, want 0", orphans)
	}

	if err := f.store.DeleteSite(ctx, fullPerms(), f.site.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteSite error = %v, want ErrNotFound", err)
	}
}

func TestDeleteURLCascadesButSparesSite(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	result, err := f.store.RecordResult(ctx, fullPerms(), f.url.ID, []IssueInput{
		{Code: "WCAG2AA.1_4_3", TypeCode: IssueTypeWarning},
	})
	if err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}

	if err := f.store.DeleteURL(ctx, fullPerms(), f.url.ID); err != nil {
		t.Fatalf("DeleteURL failed: %v", err)
	}

	if _, err := f.store.GetURL(ctx, fullPerms(), f.url.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("url survived deletion, error = %v", err)
	}
	if _, err := f.store.GetResult(ctx, fullPerms(), result.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("result survived url deletion, error = %v", err)
	}
	if _, err := f.store.GetSite(ctx, fullPerms(), f.site.ID); err != nil {
		t.Errorf("site must survive url deletion, error = %v", err)
	}
}

func TestDeleteResult(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	result, err := f.store.RecordResult(ctx, fullPerms(), f.url.ID, []IssueInput{
		{Code: "WCAG2AA.1_1_1", TypeCode: IssueTypeError},
		{Code: "WCAG2AA.1_4_3", TypeCode: IssueTypeNotice},
	})
	if err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}

	if err := f.store.DeleteResult(ctx, fullPerms(), result.ID); err != nil {
		t.Fatalf("DeleteResult failed: %v", err)
	}

	issues, err := f.store.ListIssuesForResult(ctx, fullPerms(), result.ID)
	if err != nil {
		t.Fatalf("ListIssuesForResult failed: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("issues after result deletion = %d, want 0", len(issues))
	}
	if _, err := f.store.GetURL(ctx, fullPerms(), f.url.ID); err != nil {
		t.Errorf("url must survive result deletion, error = %v", err)
	}
}

func TestGetResultDetectsSiteMismatch(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	result, err := f.store.RecordResult(ctx, fullPerms(), f.url.ID, nil)
	if err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}

	other, err := f.store.CreateSite(ctx, fullPerms(), &Site{Name: "Other", BaseURL: "https://other"})
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}

	// Corrupt the denormalized pair: the result now claims a site its
	// url does not belong to.
	if _, err := f.db.Exec(`UPDATE results SET site_id = $1 WHERE id = $2`, other.ID, result.ID); err != nil {
		t.Fatalf("corruption setup failed: %v", err)
	}

	if _, err := f.store.GetResult(ctx, fullPerms(), result.ID); !errors.Is(err, store.ErrIntegrityViolation) {
		t.Errorf("GetResult on mismatched result error = %v, want ErrIntegrityViolation", err)
	}
}

func TestListResultsNewestFirst(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.store.RecordResult(ctx, fullPerms(), f.url.ID, nil); err != nil {
			t.Fatalf("RecordResult failed: %v", err)
		}
	}

	results, err := f.store.ListResultsForURL(ctx, fullPerms(), f.url.ID)
	if err != nil {
		t.Fatalf("ListResultsForURL failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("result count = %d, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].CreatedAt.After(results[i-1].CreatedAt) {
			t.Errorf("results not ordered newest first at index %d", i)
		}
	}
}

func TestListIssueTypes(t *testing.T) {
	f := newScanFixture(t)

	types, err := f.store.ListIssueTypes(context.Background(), fullPerms())
	if err != nil {
		t.Fatalf("ListIssueTypes failed: %v", err)
	}

	want := []IssueType{
		{Code: IssueTypeUnknown, Description: "unknown"},
		{Code: IssueTypeError, Description: "error"},
		{Code: IssueTypeWarning, Description: "warning"},
		{Code: IssueTypeNotice, Description: "notice"},
	}
	if len(types) != len(want) {
		t.Fatalf("dictionary size = %d, want %d", len(types), len(want))
	}
	for i, entry := range want {
		if types[i] != entry {
			t.Errorf("types[%d] = %+v, want %+v", i, types[i], entry)
		}
	}
}
