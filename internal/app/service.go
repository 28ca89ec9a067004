package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"relieflink/api/internal/auth"
	"relieflink/api/internal/authpw"
	"relieflink/api/internal/blob"
	"relieflink/api/internal/config"
	"relieflink/api/internal/rbac"
	"relieflink/api/internal/search"
	"relieflink/api/internal/store"
	"relieflink/api/internal/util"
)

// MinDescriptionLength is enforced before any remote call is made.
const MinDescriptionLength = 10

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         rbac.Role
	JTI          string
	ExpiresAt    time.Time
}

// ImageUpload carries one uploaded image through validation to the blob
// store. Reader is consumed exactly once, in submission order.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type CreateReportInput struct {
	Category    string
	Location    string
	Description string
	Images      []ImageUpload
}

type AssignReportInput struct {
	Target string `json:"target"`
	UserID string `json:"userId"`
}

type SetStatusInput struct {
	Status string `json:"status"`
}

type AddNoteInput struct {
	Text string `json:"text"`
}

type dataStore interface {
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	ListReports(context.Context) ([]store.Report, error)
	GetReport(context.Context, string) (store.Report, error)
	InsertReport(context.Context, store.Report) error
	AssignReport(context.Context, string, string, string) (store.Report, error)
	UpdateReportStatus(context.Context, string, string) (store.Report, error)
	AppendResponseImage(context.Context, string, string) (store.Report, error)
	InsertNote(context.Context, store.Note) error
	ListNotesByReport(context.Context, string) ([]store.Note, error)
	GetUserByID(context.Context, string) (store.User, error)
	UserCount(context.Context) (int, error)
	StatusCounts(context.Context) ([]store.StatusCount, error)
	CategoryCounts(context.Context) ([]store.CategoryCount, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

type blobStore interface {
	Upload(ctx context.Context, namespace, filename string, reader io.Reader, size int64, contentType string) (string, error)
}

// sessionStore holds refresh tokens; backed by Redis when configured,
// Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexReport(record search.ReportRecord)
	IndexNote(record search.NoteRecord)
	ReindexAllFromPG(ctx context.Context)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	blob      blobStore
	sessions  sessionStore
	search    searchIndex
	passwords *authpw.Service
}

func New(cfg config.Config, data dataStore, blobs blobStore, sessions sessionStore, searchService searchIndex) *Service {
	return &Service{
		cfg:       cfg,
		store:     data,
		blob:      blobs,
		sessions:  sessions,
		search:    searchService,
		passwords: authpw.NewService(data),
	}
}

// Bootstrap seeds the coordinator account on an empty database and rebuilds
// the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.UserCount(ctx)
	if err != nil {
		return err
	}
	if count == 0 && s.cfg.AdminPassword != "" {
		if _, err := s.passwords.Register(ctx, authpw.RegisterRequest{
			Email:       s.cfg.AdminEmail,
			Password:    s.cfg.AdminPassword,
			DisplayName: s.cfg.AdminName,
			Role:        string(rbac.RoleAdmin),
		}); err != nil {
			return err
		}
		log.Printf("bootstrap: created admin account %s", s.cfg.AdminEmail)
	}
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// Sessions

func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) (Session, error) {
	user, err := s.passwords.Register(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented token is revoked and a
// fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         rbac.Normalize(user.Role),
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      rbac.Normalize(user.Role),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Reports

// CreateReport validates the civilian submission, uploads evidence images in
// order, and writes the report. Every report starts pending and unassigned.
func (s *Service) CreateReport(ctx context.Context, input CreateReportInput) (map[string]any, error) {
	category := rbac.Category(strings.TrimSpace(strings.ToLower(input.Category)))
	if !rbac.ValidCategory(category) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid disaster category", map[string]any{"field": "category"})
	}
	location := strings.TrimSpace(input.Location)
	if location == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "location is required", map[string]any{"field": "location"})
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "description is required", map[string]any{"field": "description"})
	}
	if len(description) < MinDescriptionLength {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "description is too short", map[string]any{"field": "description"})
	}

	imageURLs := make([]string, 0, len(input.Images))
	for _, image := range input.Images {
		url, err := s.blob.Upload(ctx, blob.NamespaceDisasterImages, image.Filename, image.Reader, image.Size, image.ContentType)
		if err != nil {
			log.Printf("create report: image upload failed: %v", err)
			return nil, err
		}
		imageURLs = append(imageURLs, url)
	}

	report := store.Report{
		ID:          util.NewID("rpt"),
		Category:    string(category),
		Location:    location,
		Description: description,
		ImageURLs:   imageURLs,
		Status:      string(rbac.StatusPending),
		AssignedTo:  string(rbac.TargetUnassigned),
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		log.Printf("create report: %v", err)
		return nil, err
	}

	created, err := s.store.GetReport(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	s.indexReport(created)
	return reportPayload(created), nil
}

// ListReportsForRole returns the subset of the collection the session may
// see, optionally narrowed to one status. Admin sessions see everything.
func (s *Service) ListReportsForRole(ctx context.Context, session Session, statusFilter string) ([]map[string]any, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		log.Printf("list reports: %v", err)
		return nil, err
	}

	items := make([]map[string]any, 0, len(reports))
	for _, report := range reports {
		if !rbac.Visible(session.Role, session.UserID, rbac.Target(report.AssignedTo), report.AssignedUserID) {
			continue
		}
		if statusFilter != "" && report.Status != statusFilter {
			continue
		}
		items = append(items, reportPayload(report))
	}
	return items, nil
}

// GetReport is a point read that bypasses any cached collection, so detail
// views never render stale data.
func (s *Service) GetReport(ctx context.Context, session Session, reportID string) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !rbac.Visible(session.Role, session.UserID, rbac.Target(report.AssignedTo), report.AssignedUserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return reportPayload(report), nil
}

// AssignReport is the transactional assign-and-advance operation: setting a
// real target on a pending report also moves it to assigned, in one write.
func (s *Service) AssignReport(ctx context.Context, session Session, reportID string, input AssignReportInput) (map[string]any, error) {
	if !rbac.CanAssign(session.Role) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	target := rbac.Target(strings.TrimSpace(input.Target))
	if !rbac.ValidTarget(target) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "target must be one of unassigned, volunteer, responder", nil)
	}

	assigneeID := strings.TrimSpace(input.UserID)
	if target == rbac.TargetUnassigned {
		assigneeID = ""
	}
	if assigneeID != "" {
		assignee, err := s.store.GetUserByID(ctx, assigneeID)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "assignee not found", nil)
		}
		if rbac.Normalize(assignee.Role) != rbac.Role(target) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "assignee role does not match target", nil)
		}
	}

	report, err := s.store.AssignReport(ctx, reportID, string(target), assigneeID)
	if err != nil {
		log.Printf("assign report %s: %v", reportID, err)
		return nil, err
	}
	s.indexReport(report)
	return reportPayload(report), nil
}

// SetStatus overwrites the report status. Arbitrary jumps are allowed for
// anyone who passes the permission check; strict linearity is not enforced.
func (s *Service) SetStatus(ctx context.Context, session Session, reportID string, input SetStatusInput) (map[string]any, error) {
	status := rbac.Status(strings.TrimSpace(input.Status))
	if !rbac.ValidStatus(status) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid report status", nil)
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanSetStatus(session.Role, session.UserID, rbac.Target(report.AssignedTo), report.AssignedUserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	updated, err := s.store.UpdateReportStatus(ctx, reportID, string(status))
	if err != nil {
		log.Printf("set status %s on %s: %v", status, reportID, err)
		return nil, err
	}
	s.indexReport(updated)
	return reportPayload(updated), nil
}

// Notes

func (s *Service) AddNote(ctx context.Context, session Session, reportID string, input AddNoteInput) (map[string]any, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", map[string]any{"field": "text"})
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanAnnotate(session.Role, session.UserID, rbac.Target(report.AssignedTo), report.AssignedUserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	note := store.Note{
		ID:         util.NewID("note"),
		ReportID:   reportID,
		AuthorID:   session.UserID,
		AuthorName: session.UserName,
		Body:       text,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		log.Printf("add note on %s: %v", reportID, err)
		return nil, err
	}
	if s.search != nil {
		s.search.IndexNote(search.NoteRecord{
			ID:         note.ID,
			ReportID:   note.ReportID,
			Body:       note.Body,
			AuthorName: note.AuthorName,
		})
	}
	return s.ListNotes(ctx, session, reportID)
}

// ListNotes returns the annotation trail newest-first.
func (s *Service) ListNotes(ctx context.Context, session Session, reportID string) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !rbac.Visible(session.Role, session.UserID, rbac.Target(report.AssignedTo), report.AssignedUserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	notes, err := s.store.ListNotesByReport(ctx, reportID)
	if err != nil {
		log.Printf("list notes for %s: %v", reportID, err)
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, map[string]any{
			"id":        note.ID,
			"reportId":  note.ReportID,
			"userId":    note.AuthorID,
			"userName":  note.AuthorName,
			"text":      note.Body,
			"timestamp": note.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"reportId": reportID, "items": items}, nil
}

// AddResponseImage uploads one response-phase photo and appends it to the
// report's response sequence.
func (s *Service) AddResponseImage(ctx context.Context, session Session, reportID string, image ImageUpload) (map[string]any, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanAnnotate(session.Role, session.UserID, rbac.Target(report.AssignedTo), report.AssignedUserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	url, err := s.blob.Upload(ctx, blob.NamespaceResponseImages, image.Filename, image.Reader, image.Size, image.ContentType)
	if err != nil {
		log.Printf("response image upload for %s: %v", reportID, err)
		return nil, err
	}

	updated, err := s.store.AppendResponseImage(ctx, reportID, url)
	if err != nil {
		log.Printf("append response image for %s: %v", reportID, err)
		return nil, err
	}
	return reportPayload(updated), nil
}

// Search

// Search runs the query and then drops any hit whose owning report the
// session may not see, reusing the dashboard visibility predicate.
func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	response := s.search.Search(q)
	if session.Role == rbac.RoleAdmin {
		return response, nil
	}

	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return search.Response{}, err
	}
	visible := make(map[string]bool, len(reports))
	for _, report := range reports {
		if rbac.Visible(session.Role, session.UserID, rbac.Target(report.AssignedTo), report.AssignedUserID) {
			visible[report.ID] = true
		}
	}

	filtered := make([]search.Result, 0, len(response.Results))
	for _, result := range response.Results {
		if visible[result.ReportID] {
			filtered = append(filtered, result)
		}
	}
	response.Results = filtered
	response.Total = len(filtered)
	return response, nil
}

// Statistics

// Stats summarizes the collection for the administrative dashboard.
func (s *Service) Stats(ctx context.Context) (map[string]any, error) {
	statusCounts, err := s.store.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	categoryCounts, err := s.store.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[string]int, len(statusCounts))
	total := 0
	for _, row := range statusCounts {
		byStatus[row.Status] = row.Count
		total += row.Count
	}
	byCategory := make(map[string]int, len(categoryCounts))
	for _, row := range categoryCounts {
		byCategory[row.Category] = row.Count
	}

	return map[string]any{
		"totalReports":    total,
		"pendingReports":  byStatus[string(rbac.StatusPending)],
		"resolvedReports": byStatus[string(rbac.StatusResolved)],
		"byStatus":        byStatus,
		"byCategory":      byCategory,
	}, nil
}

func (s *Service) indexReport(report store.Report) {
	if s.search == nil {
		return
	}
	s.search.IndexReport(search.ReportRecord{
		ID:          report.ID,
		Location:    report.Location,
		Description: report.Description,
		Status:      report.Status,
		Category:    report.Category,
	})
}

func reportPayload(report store.Report) map[string]any {
	imageURLs := report.ImageURLs
	if imageURLs == nil {
		imageURLs = []string{}
	}
	responseImages := report.ResponseImages
	if responseImages == nil {
		responseImages = []string{}
	}
	payload := map[string]any{
		"id":             report.ID,
		"disasterType":   report.Category,
		"location":       report.Location,
		"description":    report.Description,
		"imageUrls":      imageURLs,
		"status":         report.Status,
		"assignedTo":     report.AssignedTo,
		"responseImages": responseImages,
		"createdAt":      report.CreatedAt.Format(time.RFC3339),
		"updatedAt":      report.UpdatedAt.Format(time.RFC3339),
	}
	if report.AssignedUserID != "" {
		payload["assignedUserId"] = report.AssignedUserID
	}
	return payload
}
