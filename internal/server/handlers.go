package server

import (
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"minix/internal/drive"
	"minix/internal/model"
	"minix/internal/wire"
)

// optionalID reads a folder id where an empty value or "null" means the root.
func optionalID(v string) *string {
	if v == "" || v == "null" {
		return nil
	}
	return &v
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

type driveResponse struct {
	FolderID *string        `json:"folder_id"`
	Path     []*wire.Folder `json:"path"`
	Entries  []wire.Entry   `json:"entries"`
}

func (s *Server) handleDrive(c echo.Context) error {
	ctx := c.Request().Context()
	folderID := optionalID(c.QueryParam("folder_id"))

	entries, err := s.svc.ListFolder(ctx, folderID)
	if err != nil {
		return err
	}
	resp := driveResponse{FolderID: folderID, Path: []*wire.Folder{}, Entries: wire.FromEntries(entries)}
	if folderID != nil {
		path, err := s.svc.FolderPath(ctx, *folderID)
		if err != nil {
			return err
		}
		resp.Path = wire.FromFolders(path)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListFolders(c echo.Context) error {
	folders, err := s.svc.ListAllFolders(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromFolders(folders))
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) handleCreateFolder(c echo.Context) error {
	var req createFolderRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	f, err := s.svc.CreateFolder(c.Request().Context(), req.Name, req.ParentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, wire.FromFolder(f))
}

type renameFolderRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameFolder(c echo.Context) error {
	var req renameFolderRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	f, err := s.svc.RenameFolder(c.Request().Context(), c.Param("id"), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromFolder(f))
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// deleteResponse answers a delete. A partial storage failure still
// answers 200: the rows are gone and the report lists the leftover blobs.
func (s *Server) deleteResponse(c echo.Context, report *drive.DeleteReport, err error) error {
	if err != nil {
		if _, partial := wire.PartialFailure(err); !partial || report == nil {
			return err
		}
		s.logger.Warn("delete left blobs behind", "count", len(report.StorageErrors))
	}
	return c.JSON(http.StatusOK, wire.FromDeleteReport(report))
}

func (s *Server) handleDeleteFolders(c echo.Context) error {
	var req idsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	report, err := s.svc.DeleteFolders(c.Request().Context(), req.IDs)
	return s.deleteResponse(c, report, err)
}

func (s *Server) handleDeleteFiles(c echo.Context) error {
	var req idsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	report, err := s.svc.DeleteFiles(c.Request().Context(), req.IDs)
	return s.deleteResponse(c, report, err)
}

func (s *Server) handleFolderPath(c echo.Context) error {
	path, err := s.svc.FolderPath(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromFolders(path))
}

// headerWriter commits the response headers on the first write, so errors
// raised before any archive bytes exist still get a JSON error response.
type headerWriter struct {
	resp    *echo.Response
	prepare func()
	started bool
}

func (w *headerWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.started = true
		w.prepare()
		w.resp.WriteHeader(http.StatusOK)
	}
	return w.resp.Write(p)
}

func (s *Server) handleDownloadFolder(c echo.Context) error {
	ctx := c.Request().Context()
	path, err := s.svc.FolderPath(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	name := path[len(path)-1].Name

	w := &headerWriter{resp: c.Response(), prepare: func() {
		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "application/zip")
		h.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": name + ".zip"}))
	}}
	report, err := s.svc.DownloadFolder(ctx, c.Param("id"), w)
	if err != nil {
		return err
	}
	if len(report.Skipped) > 0 {
		s.logger.Warn("archive incomplete", "folder", report.Folder.ID, "skipped", len(report.Skipped))
	}
	return nil
}

func (s *Server) handleUploadFiles(c echo.Context) error {
	if err := c.Request().ParseMultipartForm(maxUploadMemory); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	form := c.Request().MultipartForm
	defer form.RemoveAll()

	headers := form.File["files"]
	uploads := make([]drive.Upload, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload "+fh.Filename)
		}
		opened = append(opened, f)
		uploads = append(uploads, drive.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
		})
	}

	report, err := s.svc.UploadFiles(c.Request().Context(), optionalID(c.FormValue("folder_id")), uploads)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromUploadReport(report))
}

type fileURLRequest struct {
	ID         string `json:"id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (s *Server) handleFileURL(c echo.Context) error {
	var req fileURLRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	url, expires, err := s.svc.CreateFileURL(c.Request().Context(), req.ID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.SignedURL{URL: url, ExpiresAt: expires})
}

func (s *Server) handleDashboard(c echo.Context) error {
	d, err := s.svc.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromDashboard(d))
}

func (s *Server) handleRecent(c echo.Context) error {
	recent, err := s.svc.RecentFiles(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromRecentFiles(recent))
}

func (s *Server) handleListPastes(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	pastes, err := s.svc.ListPastes(c.Request().Context(), optionalID(c.QueryParam("folder_id")), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromFiles(pastes))
}

type createPasteRequest struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Syntax    string     `json:"syntax"`
	FolderID  *string    `json:"folder_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) handleCreatePaste(c echo.Context) error {
	var req createPasteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := s.svc.CreatePaste(c.Request().Context(), drive.PasteInput{
		Title:     req.Title,
		Content:   req.Content,
		Syntax:    req.Syntax,
		FolderID:  req.FolderID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, wire.FromPaste(p))
}

func (s *Server) handleGetPaste(c echo.Context) error {
	p, err := s.svc.GetPaste(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromPaste(p))
}

type updatePasteRequest struct {
	Title       *string    `json:"title"`
	Content     *string    `json:"content"`
	Syntax      *string    `json:"syntax"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
	FolderID    *string    `json:"folder_id"`
	MoveToRoot  bool       `json:"move_to_root"`
}

func (s *Server) handleUpdatePaste(c echo.Context) error {
	var req updatePasteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	f, err := s.svc.UpdatePaste(c.Request().Context(), c.Param("id"), drive.PasteUpdate{
		Title:       req.Title,
		Content:     req.Content,
		Syntax:      req.Syntax,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
		FolderID:    req.FolderID,
		MoveToRoot:  req.MoveToRoot,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.FromFile(f))
}

func (s *Server) handleDeletePaste(c echo.Context) error {
	if err := s.svc.DeletePaste(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSharePaste(c echo.Context) error {
	url, expires, err := s.svc.SharePaste(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wire.SignedURL{URL: url, ExpiresAt: expires})
}

// currentUser returns the user placed in the request by authMiddleware.
func currentUser(c echo.Context) (*model.User, error) {
	u, ok := drive.UserFromContext(c.Request().Context())
	if !ok {
		return nil, drive.ErrUnauthenticated
	}
	return u, nil
}
