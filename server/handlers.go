package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/timelinesocial/timeline/models"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type RegisterRequest struct {
	Handle    string `json:"handle"`
	PublicKey string `json:"publicKey"`
}

// body of every signed post-level write
type SignedRequest struct {
	Handle    string `json:"handle"`
	Signature string `json:"signature"`
}

type SignedFollowRequest struct {
	From      string `json:"from"`
	Signature string `json:"signature"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type IDResponse struct {
	ID string `json:"id"`
}

func errorBody(err error) GenericError {
	return GenericError{
		Error:   models.Kind(err),
		Message: err.Error(),
	}
}

// writeError answers a failed write. Every classified failure is a rejection of the request, with the kind in the body telling them apart.
func (srv *Server) writeError(c echo.Context, err error) error {
	code := http.StatusBadRequest
	if models.Kind(err) == "InternalError" {
		code = http.StatusInternalServerError
		srv.logger.Error("unclassified write failure", "path", c.Path(), "err", err)
	}
	return c.JSON(code, errorBody(err))
}

// readError answers a failed read: missing records are 404, bad input 400, anything else 500.
func (srv *Server) readError(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, models.ErrDomainViolation):
		code = http.StatusBadRequest
	}
	if code >= 500 {
		srv.logger.Warn("read failed", "path", c.Path(), "err", err)
	}
	return c.JSON(code, errorBody(err))
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprintf("%v", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("timelined-http-internal-error", "err", err)
	}
	if c.Response().Committed {
		return
	}
	c.JSON(code, GenericError{Error: http.StatusText(code), Message: msg})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Version: versioninfo.Short()})
}

// POST /register
func (srv *Server) HandleRegister(c echo.Context) error {
	var body RegisterRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{Error: "BadRequest", Message: "invalid request body"})
	}
	err := srv.svc.Register(c.Request().Context(), body.Handle, body.PublicKey)
	if errors.Is(err, models.ErrAlreadyExists) {
		c.Response().Header().Set(echo.HeaderLocation, "/"+body.Handle)
		return c.JSON(http.StatusSeeOther, errorBody(err))
	}
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, MessageResponse{Message: fmt.Sprintf("user %s registered", body.Handle)})
}

// GET /:handle
func (srv *Server) HandleUser(c echo.Context) error {
	user, err := srv.svc.User(c.Request().Context(), c.Param("handle"))
	if err != nil {
		return srv.readError(c, err)
	}
	return c.JSON(http.StatusFound, user)
}

// GET /timeline/:handle
func (srv *Server) HandleTimeline(c echo.Context) error {
	views, err := srv.svc.Timeline(c.Request().Context(), c.Param("handle"))
	if errors.Is(err, models.ErrAggregationFailure) {
		// only the timeline reports an unreachable followed user or post as a bad request
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}
	if err != nil {
		return srv.readError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

// GET /post/:id
func (srv *Server) HandlePost(c echo.Context) error {
	post, err := srv.svc.Post(c.Request().Context(), c.Param("id"))
	if err != nil {
		return srv.readError(c, err)
	}
	return c.JSON(http.StatusFound, post)
}

// GET /topic/:topic
func (srv *Server) HandleTopic(c echo.Context) error {
	posts, err := srv.svc.Topic(c.Request().Context(), c.Param("topic"))
	if err != nil {
		return srv.readError(c, err)
	}
	return c.JSON(http.StatusOK, posts)
}

func bindSigned(c echo.Context) (*SignedRequest, error) {
	var body SignedRequest
	if err := c.Bind(&body); err != nil {
		return nil, models.Violation("invalid request body")
	}
	return &body, nil
}

// POST /publish
func (srv *Server) HandlePublish(c echo.Context) error {
	body, err := bindSigned(c)
	if err != nil {
		return srv.writeError(c, err)
	}
	id, err := srv.svc.Publish(c.Request().Context(), body.Handle, body.Signature)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

// POST /like
func (srv *Server) HandleLike(c echo.Context) error {
	body, err := bindSigned(c)
	if err != nil {
		return srv.writeError(c, err)
	}
	id, err := srv.svc.Like(c.Request().Context(), body.Handle, body.Signature)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, IDResponse{ID: id})
}

// POST /repost
func (srv *Server) HandleRepost(c echo.Context) error {
	body, err := bindSigned(c)
	if err != nil {
		return srv.writeError(c, err)
	}
	id, err := srv.svc.Repost(c.Request().Context(), body.Handle, body.Signature)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, IDResponse{ID: id})
}

// POST /unlike
func (srv *Server) HandleUnlike(c echo.Context) error {
	body, err := bindSigned(c)
	if err != nil {
		return srv.writeError(c, err)
	}
	id, err := srv.svc.Unlike(c.Request().Context(), body.Handle, body.Signature)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s unliked %s", body.Handle, id)})
}

// POST /unrepost
func (srv *Server) HandleUnrepost(c echo.Context) error {
	body, err := bindSigned(c)
	if err != nil {
		return srv.writeError(c, err)
	}
	id, err := srv.svc.Unrepost(c.Request().Context(), body.Handle, body.Signature)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s unreposted %s", body.Handle, id)})
}

// POST /follow
func (srv *Server) HandleFollow(c echo.Context) error {
	var body SignedFollowRequest
	if err := c.Bind(&body); err != nil {
		return srv.writeError(c, models.Violation("invalid request body"))
	}
	to, err := srv.svc.Follow(c.Request().Context(), body.From, body.Signature)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s now follows %s", body.From, to)})
}

// POST /unfollow
func (srv *Server) HandleUnfollow(c echo.Context) error {
	var body SignedFollowRequest
	if err := c.Bind(&body); err != nil {
		return srv.writeError(c, models.Violation("invalid request body"))
	}
	to, err := srv.svc.Unfollow(c.Request().Context(), body.From, body.Signature)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s no longer follows %s", body.From, to)})
}
