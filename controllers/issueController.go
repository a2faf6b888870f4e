package controllers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jansetu-be/apperrors"
	"jansetu-be/export"
	"jansetu-be/services"
)

const requestTimeout = 10 * time.Second

// IssueController exposes the issue pipelines over HTTP.
type IssueController struct {
	Service *services.IssueService
}

func NewIssueController(service *services.IssueService) *IssueController {
	return &IssueController{Service: service}
}

// CreateIssue handles POST /api/issues (multipart with attachments, or JSON)
func (ic *IssueController) CreateIssue(c *gin.Context) {
	in, err := parseCreateInput(c)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	issue, err := ic.Service.Create(ctx, *in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, issue)
}

// ListIssues handles GET /api/issues with filtering, search, sorting, and
// offset pagination
func (ic *IssueController) ListIssues(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	params := services.ListParams{
		Page:     page,
		Limit:    limit,
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		Q:        c.Query("q"),
		Sort:     c.DefaultQuery("sort", "createdAt"),
		Order:    c.DefaultQuery("order", "desc"),
	}
	params.Normalize()

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	issues, total, err := ic.Service.List(ctx, params)
	if err != nil {
		respondError(c, err)
		return
	}

	pages := (total + int64(params.Limit) - 1) / int64(params.Limit)

	c.JSON(http.StatusOK, gin.H{
		"data": issues,
		"pagination": gin.H{
			"total": total,
			"page":  params.Page,
			"limit": params.Limit,
			"pages": pages,
		},
	})
}

// GetIssue handles GET /api/issues/:id
func (ic *IssueController) GetIssue(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	issue, err := ic.Service.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// UpdateIssue handles PUT /api/issues/:id as a field-level partial update
func (ic *IssueController) UpdateIssue(c *gin.Context) {
	in, err := parseUpdateInput(c)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	issue, err := ic.Service.Update(ctx, c.Param("id"), *in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// DeleteIssue handles DELETE /api/issues/:id
func (ic *IssueController) DeleteIssue(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := ic.Service.Delete(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetStats handles GET /api/issues/stats
func (ic *IssueController) GetStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	stats, err := ic.Service.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportIssues handles GET /api/issues/export, re-running the list query
// with the caller's filters and the export bound, then streaming the
// rendered document
func (ic *IssueController) ExportIssues(c *gin.Context) {
	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "pdf" {
		respondError(c, apperrors.NewValidation("format", "format must be one of 'xlsx' | 'pdf'"))
		return
	}

	params := services.ListParams{
		Page:     1,
		Limit:    export.MaxRows,
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		Q:        c.Query("q"),
		Sort:     "createdAt",
		Order:    "desc",
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	issues, _, err := ic.Service.List(ctx, params)
	if err != nil {
		respondError(c, err)
		return
	}

	switch format {
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", `attachment; filename="issues_export.xlsx"`)
		c.Status(http.StatusOK)
		err = export.WriteExcel(c.Writer, issues)
	case "pdf":
		c.Header("Content-Type", "application/pdf")
		c.Header("Content-Disposition", `attachment; filename="issues_export.pdf"`)
		c.Status(http.StatusOK)
		err = export.WritePDF(c.Writer, issues, time.Now())
	}
	if err != nil {
		log.Printf("export failed: %v", err)
	}
}

func parseCreateInput(c *gin.Context) (*services.CreateIssueInput, error) {
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, apperrors.NewValidation("body", "invalid multipart form")
		}
		return &services.CreateIssueInput{
			Category:    c.PostForm("category"),
			Description: c.PostForm("description"),
			Priority:    c.PostForm("priority"),
			ReportedBy:  c.PostForm("reportedBy"),
			Location:    c.PostForm("location"),
			ContactInfo: c.PostForm("contactInfo"),
			Images:      form.File["images"],
			AudioNote:   form.File["audioNote"],
		}, nil
	}

	var body struct {
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Priority    string          `json:"priority"`
		ReportedBy  string          `json:"reportedBy"`
		Location    json.RawMessage `json:"location"`
		ContactInfo json.RawMessage `json:"contactInfo"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apperrors.NewValidation("body", "invalid JSON body")
	}
	return &services.CreateIssueInput{
		Category:    body.Category,
		Description: body.Description,
		Priority:    body.Priority,
		ReportedBy:  body.ReportedBy,
		Location:    string(body.Location),
		ContactInfo: string(body.ContactInfo),
	}, nil
}

func parseUpdateInput(c *gin.Context) (*services.UpdateIssueInput, error) {
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, apperrors.NewValidation("body", "invalid multipart form")
		}
		return &services.UpdateIssueInput{
			Status:      formValue(form, "status"),
			Priority:    formValue(form, "priority"),
			AssignedTo:  formNullable(form, "assignedTo"),
			Category:    formValue(form, "category"),
			Description: formValue(form, "description"),
			ReportedBy:  formNullable(form, "reportedBy"),
			Location:    formValue(form, "location"),
			ContactInfo: formValue(form, "contactInfo"),
			Images:      form.File["images"],
			AudioNote:   form.File["audioNote"],
		}, nil
	}

	if c.Request.ContentLength == 0 {
		return &services.UpdateIssueInput{}, nil
	}

	var body struct {
		Status      *string          `json:"status"`
		Priority    *string          `json:"priority"`
		AssignedTo  *json.RawMessage `json:"assignedTo"`
		Category    *string          `json:"category"`
		Description *string          `json:"description"`
		ReportedBy  *json.RawMessage `json:"reportedBy"`
		Location    *json.RawMessage `json:"location"`
		ContactInfo *json.RawMessage `json:"contactInfo"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apperrors.NewValidation("body", "invalid JSON body")
	}
	assignedTo, err := rawNullable(body.AssignedTo, "assignedTo")
	if err != nil {
		return nil, err
	}
	reportedBy, err := rawNullable(body.ReportedBy, "reportedBy")
	if err != nil {
		return nil, err
	}
	return &services.UpdateIssueInput{
		Status:      body.Status,
		Priority:    body.Priority,
		AssignedTo:  assignedTo,
		Category:    body.Category,
		Description: body.Description,
		ReportedBy:  reportedBy,
		Location:    rawToString(body.Location),
		ContactInfo: rawToString(body.ContactInfo),
	}, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

func formValue(form *multipart.Form, key string) *string {
	if values, ok := form.Value[key]; ok && len(values) > 0 {
		return &values[0]
	}
	return nil
}

func formNullable(form *multipart.Form, key string) *sql.NullString {
	if values, ok := form.Value[key]; ok && len(values) > 0 {
		return &sql.NullString{String: values[0], Valid: true}
	}
	return nil
}

// rawNullable keeps the absent / null / value distinction of a nullable
// text field: an explicit JSON null clears the stored value.
func rawNullable(raw *json.RawMessage, field string) (*sql.NullString, error) {
	if raw == nil {
		return nil, nil
	}
	if string(*raw) == "null" {
		return &sql.NullString{}, nil
	}
	var s string
	if err := json.Unmarshal(*raw, &s); err != nil {
		return nil, apperrors.NewValidation(field, "%s must be a string or null", field)
	}
	return &sql.NullString{String: s, Valid: true}, nil
}

func rawToString(raw *json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	s := string(*raw)
	return &s
}

// respondError is the single boundary mapping pipeline errors to HTTP
// responses. Internal detail is withheld outside of debug mode.
func respondError(c *gin.Context, err error) {
	var validation *apperrors.Validation
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"message": validation.Message})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Issue not found"})
	case errors.Is(err, gorm.ErrDuplicatedKey):
		c.JSON(http.StatusBadRequest, gin.H{"message": "duplicate value for a unique field"})
	default:
		log.Printf("request failed: %v", err)
		message := "Internal Server Error"
		if gin.Mode() == gin.DebugMode {
			message = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": message})
	}
}
