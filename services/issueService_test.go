package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jansetu-be/apperrors"
	"jansetu-be/models"
	"jansetu-be/storage"
)

var trackingIDPattern = regexp.MustCompile(`^JS-[0-9A-F]{8}$`)

// pngBytes is a minimal payload that sniffs as image/png.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

// wavBytes sniffs as audio/wav.
var wavBytes = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

func newTestService(t *testing.T) *IssueService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Issue{}))

	media, err := storage.NewMediaStore(t.TempDir())
	require.NoError(t, err)

	return NewIssueService(db, media)
}

// fileHeaders builds real multipart file headers for a single field by
// round-tripping through an HTTP request body.
func fileHeaders(t *testing.T, field string, contents ...[]byte) []*multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i, content := range contents {
		part, err := w.CreateFormFile(field, fmt.Sprintf("file-%d.bin", i))
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File[field]
}

func countIssues(t *testing.T, s *IssueService) int64 {
	t.Helper()
	var total int64
	require.NoError(t, s.DB.Model(&models.Issue{}).Count(&total).Error)
	return total
}

func TestCreateIssueDefaults(t *testing.T) {
	s := newTestService(t)

	issue, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Roads",
		Description: "Pothole on Main St",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, issue.ID)
	assert.Regexp(t, trackingIDPattern, issue.TrackingID)
	assert.Equal(t, models.StatusPending, issue.Status)
	assert.Equal(t, models.PriorityMedium, issue.Priority)
	assert.JSONEq(t, "[]", string(issue.Images))
	assert.Nil(t, issue.AudioNote)
	assert.False(t, issue.CreatedAt.IsZero())
}

func TestCreateIssueTrimsFields(t *testing.T) {
	s := newTestService(t)

	issue, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "  Water  ",
		Description: "  Leaking pipe  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Water", issue.Category)
	assert.Equal(t, "Leaking pipe", issue.Description)
}

func TestCreateIssueTrackingIDsUnique(t *testing.T) {
	s := newTestService(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		issue, err := s.Create(context.Background(), CreateIssueInput{
			Category:    "Roads",
			Description: fmt.Sprintf("report %d", i),
		})
		require.NoError(t, err)
		assert.False(t, seen[issue.TrackingID], "tracking id %s repeated", issue.TrackingID)
		seen[issue.TrackingID] = true
	}
}

func TestCreateIssueValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    CreateIssueInput
		field string
	}{
		{"missing category", CreateIssueInput{Description: "d"}, "category"},
		{"blank category", CreateIssueInput{Category: "   ", Description: "d"}, "category"},
		{"missing description", CreateIssueInput{Category: "Roads"}, "description"},
		{"unknown priority", CreateIssueInput{Category: "Roads", Description: "d", Priority: "urgent"}, "priority"},
		{"malformed location", CreateIssueInput{Category: "Roads", Description: "d", Location: "{not json"}, "location"},
		{"malformed contactInfo", CreateIssueInput{Category: "Roads", Description: "d", ContactInfo: "nope"}, "contactInfo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t)
			_, err := s.Create(context.Background(), tt.in)

			var validation *apperrors.Validation
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.field, validation.Field)
			assert.Zero(t, countIssues(t, s), "rejected submission must not persist")
		})
	}
}

func TestCreateIssueWithFiles(t *testing.T) {
	s := newTestService(t)

	issue, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Sanitation",
		Description: "Overflowing bin",
		Priority:    "high",
		Location:    `{"lat":12.97,"lng":77.59,"name":"MG Road"}`,
		Images:      fileHeaders(t, "images", pngBytes, pngBytes),
		AudioNote:   fileHeaders(t, "audioNote", wavBytes),
	})
	require.NoError(t, err)

	images, err := issue.ImageList()
	require.NoError(t, err)
	require.Len(t, images, 2)
	for _, img := range images {
		assert.Equal(t, "image/png", img.Mimetype)
		assert.Contains(t, img.URL, storage.URLPrefix)
		assert.Equal(t, int64(len(pngBytes)), img.Size)
	}

	require.NotNil(t, issue.AudioNote)
	assert.Contains(t, *issue.AudioNote, storage.URLPrefix)
}

func TestCreateIssueRejectsBadFiles(t *testing.T) {
	s := newTestService(t)

	_, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Roads",
		Description: "d",
		Images:      fileHeaders(t, "images", []byte("plain text, not an image")),
	})
	var validation *apperrors.Validation
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "images", validation.Field)
	assert.Zero(t, countIssues(t, s))
}

func TestCreateIssueRejectsTooManyImages(t *testing.T) {
	s := newTestService(t)

	_, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Roads",
		Description: "d",
		Images:      fileHeaders(t, "images", pngBytes, pngBytes, pngBytes, pngBytes, pngBytes, pngBytes),
	})
	var validation *apperrors.Validation
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "images", validation.Field)
}

func TestCreateIssueStringifiedJSONField(t *testing.T) {
	s := newTestService(t)

	issue, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Roads",
		Description: "d",
		Location:    `"{\"name\":\"Ward 12\"}"`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ward 12"}`, string(issue.Location))
}

func TestUpdateIssueNotFound(t *testing.T) {
	s := newTestService(t)

	status := "resolved"
	_, err := s.Update(context.Background(), "00000000-0000-0000-0000-000000000000", UpdateIssueInput{Status: &status})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.Update(context.Background(), "missing", UpdateIssueInput{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdatePartialFields(t *testing.T) {
	s := newTestService(t)

	created, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Roads",
		Description: "Pothole on Main St",
	})
	require.NoError(t, err)

	status := "in_progress"
	updated, err := s.Update(context.Background(), created.ID, UpdateIssueInput{
		Status:     &status,
		AssignedTo: &sql.NullString{String: "ward-officer-7", Valid: true},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusInProgress, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, "ward-officer-7", *updated.AssignedTo)
	// untouched fields survive
	assert.Equal(t, "Roads", updated.Category)
	assert.Equal(t, "Pothole on Main St", updated.Description)
	assert.Equal(t, created.TrackingID, updated.TrackingID)
	assert.Equal(t, models.PriorityMedium, updated.Priority)
}

func TestUpdateClearsNullableFields(t *testing.T) {
	s := newTestService(t)

	created, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Roads",
		Description: "d",
		ReportedBy:  "Asha",
	})
	require.NoError(t, err)

	updated, err := s.Update(context.Background(), created.ID, UpdateIssueInput{
		AssignedTo: &sql.NullString{String: "crew-3", Valid: true},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTo)

	// a present but invalid NullString nulls the column
	cleared, err := s.Update(context.Background(), created.ID, UpdateIssueInput{
		AssignedTo: &sql.NullString{},
		ReportedBy: &sql.NullString{},
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.AssignedTo)
	assert.Nil(t, cleared.ReportedBy)

	reloaded, err := s.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.AssignedTo)
	assert.Nil(t, reloaded.ReportedBy)
}

func TestUpdateRejectsBadEnums(t *testing.T) {
	s := newTestService(t)

	created, err := s.Create(context.Background(), CreateIssueInput{Category: "Roads", Description: "d"})
	require.NoError(t, err)

	bad := "urgent"
	_, err = s.Update(context.Background(), created.ID, UpdateIssueInput{Priority: &bad})
	var validation *apperrors.Validation
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "priority", validation.Field)

	badStatus := "closed"
	_, err = s.Update(context.Background(), created.ID, UpdateIssueInput{Status: &badStatus})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "status", validation.Field)

	// no mutation happened
	reloaded, err := s.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reloaded.Status)
	assert.Equal(t, models.PriorityMedium, reloaded.Priority)
}

func TestUpdateAppendsImages(t *testing.T) {
	s := newTestService(t)

	created, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Roads",
		Description: "d",
		Images:      fileHeaders(t, "images", pngBytes),
	})
	require.NoError(t, err)

	before, err := created.ImageList()
	require.NoError(t, err)

	updated, err := s.Update(context.Background(), created.ID, UpdateIssueInput{
		Images: fileHeaders(t, "images", pngBytes, pngBytes),
	})
	require.NoError(t, err)

	after, err := updated.ImageList()
	require.NoError(t, err)
	require.Len(t, after, len(before)+2)
	assert.Equal(t, before[0], after[0], "existing entries are never removed")
}

func TestUpdateOverwritesAudioNote(t *testing.T) {
	s := newTestService(t)

	created, err := s.Create(context.Background(), CreateIssueInput{
		Category:    "Roads",
		Description: "d",
		AudioNote:   fileHeaders(t, "audioNote", wavBytes),
	})
	require.NoError(t, err)
	require.NotNil(t, created.AudioNote)
	first := *created.AudioNote

	updated, err := s.Update(context.Background(), created.ID, UpdateIssueInput{
		AudioNote: fileHeaders(t, "audioNote", wavBytes),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.AudioNote)
	assert.NotEqual(t, first, *updated.AudioNote)
}

func TestDeleteIssue(t *testing.T) {
	s := newTestService(t)

	created, err := s.Create(context.Background(), CreateIssueInput{Category: "Roads", Description: "d"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), created.ID))
	assert.Zero(t, countIssues(t, s))

	assert.ErrorIs(t, s.Delete(context.Background(), created.ID), apperrors.ErrNotFound)

	_, err = s.Get(context.Background(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func seedIssues(t *testing.T, s *IssueService, specs []struct {
	category, description, priority string
	status                          models.IssueStatus
}) {
	t.Helper()
	for i, spec := range specs {
		issue, err := s.Create(context.Background(), CreateIssueInput{
			Category:    spec.category,
			Description: spec.description,
			Priority:    spec.priority,
		})
		require.NoError(t, err)
		if spec.status != "" && spec.status != models.StatusPending {
			st := string(spec.status)
			_, err = s.Update(context.Background(), issue.ID, UpdateIssueInput{Status: &st})
			require.NoError(t, err)
		}
		// spread createdAt so ordering assertions are stable
		base := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
		err = s.DB.Model(&models.Issue{}).Where("id = ?", issue.ID).
			UpdateColumn("created_at", base.Add(time.Duration(i)*time.Minute)).Error
		require.NoError(t, err)
	}
}

func TestListFiltersAndSearch(t *testing.T) {
	s := newTestService(t)
	seedIssues(t, s, []struct {
		category, description, priority string
		status                          models.IssueStatus
	}{
		{"Roads", "Pothole on Main St", "high", models.StatusPending},
		{"Roads", "Broken divider", "low", models.StatusResolved},
		{"Water", "Leaking pipe near school", "medium", models.StatusPending},
		{"Electricity", "Street light out on ROADS crossing", "medium", models.StatusInProgress},
	})

	issues, total, err := s.List(context.Background(), ListParams{Status: "pending"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, it := range issues {
		assert.Equal(t, models.StatusPending, it.Status)
	}

	issues, total, err = s.List(context.Background(), ListParams{Category: "Roads", Priority: "low"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, issues, 1)
	assert.Equal(t, "Broken divider", issues[0].Description)

	// free text matches description or category, case-insensitively
	issues, total, err = s.List(context.Background(), ListParams{Q: "roads"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, it := range issues {
		matched := it.Category == "Roads" || it.Description == "Street light out on ROADS crossing"
		assert.True(t, matched, "unexpected match %q / %q", it.Category, it.Description)
	}

	// free text also matches tracking ids
	probe, _, err := s.List(context.Background(), ListParams{Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, probe)
	_, total, err = s.List(context.Background(), ListParams{Q: probe[0].TrackingID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	// filters combine with AND
	_, total, err = s.List(context.Background(), ListParams{Q: "roads", Status: "resolved"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestListPaginationInvariant(t *testing.T) {
	s := newTestService(t)

	specs := make([]struct {
		category, description, priority string
		status                          models.IssueStatus
	}, 25)
	for i := range specs {
		specs[i].category = "Roads"
		specs[i].description = fmt.Sprintf("report %02d", i)
		specs[i].status = models.StatusResolved
	}
	seedIssues(t, s, specs)

	const limit = 10
	seen := make(map[string]bool)
	var pages [][]models.Issue
	for page := 1; page <= 3; page++ {
		issues, total, err := s.List(context.Background(), ListParams{
			Page: page, Limit: limit, Status: "resolved",
		})
		require.NoError(t, err)
		assert.EqualValues(t, 25, total)
		for _, it := range issues {
			assert.False(t, seen[it.ID], "issue %s duplicated across pages", it.ID)
			seen[it.ID] = true
		}
		pages = append(pages, issues)
	}
	assert.Len(t, seen, 25, "concatenated pages must reproduce the full set")
	assert.Len(t, pages[0], 10)
	assert.Len(t, pages[1], 10)
	assert.Len(t, pages[2], 5)

	// page 2 holds records 11-20 of the createdAt-desc ordering
	assert.Equal(t, "report 14", pages[1][0].Description)
	assert.Equal(t, "report 05", pages[1][9].Description)
}

func TestListSortAndClamping(t *testing.T) {
	s := newTestService(t)
	seedIssues(t, s, []struct {
		category, description, priority string
		status                          models.IssueStatus
	}{
		{"B-cat", "first", "", ""},
		{"A-cat", "second", "", ""},
		{"C-cat", "third", "", ""},
	})

	issues, _, err := s.List(context.Background(), ListParams{Sort: "category", Order: "asc"})
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "A-cat", issues[0].Category)
	assert.Equal(t, "C-cat", issues[2].Category)

	// default order is createdAt descending
	issues, _, err = s.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, "third", issues[0].Description)

	// unknown sort clamps to createdAt instead of failing
	issues, _, err = s.List(context.Background(), ListParams{Sort: "evil; DROP TABLE issues"})
	require.NoError(t, err)
	assert.Equal(t, "third", issues[0].Description)

	// out-of-range pagination clamps to the defaults
	issues, total, err := s.List(context.Background(), ListParams{Page: -3, Limit: -1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, issues, 3)

	_, _, err = s.List(context.Background(), ListParams{Limit: 100000})
	require.NoError(t, err)
}

func TestStatsSumToTotal(t *testing.T) {
	s := newTestService(t)
	seedIssues(t, s, []struct {
		category, description, priority string
		status                          models.IssueStatus
	}{
		{"Roads", "a", "", models.StatusPending},
		{"Roads", "b", "", models.StatusResolved},
		{"Water", "c", "", models.StatusResolved},
		{"Electricity", "d", "", models.StatusRejected},
		{"Water", "e", "", models.StatusPending},
	})

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)

	var statusSum, categorySum int64
	for _, b := range stats.ByStatus {
		statusSum += b.Count
	}
	for _, b := range stats.ByCategory {
		categorySum += b.Count
	}
	assert.EqualValues(t, 5, statusSum)
	assert.EqualValues(t, 5, categorySum)

	byStatus := make(map[models.IssueStatus]int64)
	for _, b := range stats.ByStatus {
		byStatus[b.Status] = b.Count
	}
	assert.EqualValues(t, 2, byStatus[models.StatusPending])
	assert.EqualValues(t, 2, byStatus[models.StatusResolved])
	assert.EqualValues(t, 1, byStatus[models.StatusRejected])
	assert.NotContains(t, byStatus, models.StatusInProgress)
}

func TestStatsEmptyStore(t *testing.T) {
	s := newTestService(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats.ByStatus)
	assert.Empty(t, stats.ByCategory)

	raw, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.JSONEq(t, `{"byStatus":[],"byCategory":[]}`, string(raw))
}

func TestParseJSONField(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantNil bool
		wantErr bool
	}{
		{"empty", "", "", true, false},
		{"null literal", "null", "", true, false},
		{"object", `{"lat":1,"lng":2}`, `{"lat":1,"lng":2}`, false, false},
		{"array", `[1,2]`, `[1,2]`, false, false},
		{"stringified object", `"{\"lat\":1}"`, `{"lat":1}`, false, false},
		{"quoted plain text", `"downtown"`, `"downtown"`, false, false},
		{"quoted empty", `""`, "", true, false},
		{"bare word", "downtown", "", false, true},
		{"truncated object", `{"lat":`, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONField(tt.in, "location")
			if tt.wantErr {
				var validation *apperrors.Validation
				require.ErrorAs(t, err, &validation)
				assert.Equal(t, "location", validation.Field)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
