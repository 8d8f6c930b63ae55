package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"halcyon-cms/pkg/ctxlog"
	"halcyon-cms/pkg/halcyon"
	"halcyon-cms/pkg/models"
	"halcyon-cms/pkg/services"
)

// API serves the template store as JSON. Every template route accepts
// ?theme= to pick a datasource other than the default.
type API struct {
	templates *services.Templates
}

func NewAPI(templates *services.Templates) *API {
	return &API{templates: templates}
}

func (a *API) Register(api *gin.RouterGroup) {
	api.GET("/types", a.ListTypes)
	api.GET("/themes", a.ListThemes)
	api.GET("/templates/:type", a.ListTemplates)
	api.POST("/templates/:type", a.CreateTemplate)
	api.GET("/templates/:type/*fileName", a.GetTemplate)
	api.PUT("/templates/:type/*fileName", a.SaveTemplate)
	api.DELETE("/templates/:type/*fileName", a.DeleteTemplate)
}

func (a *API) ListTypes(c *gin.Context) {
	c.JSON(http.StatusOK, a.templates.Types())
}

func (a *API) ListThemes(c *gin.Context) {
	c.JSON(http.StatusOK, a.templates.Themes())
}

func (a *API) ListTemplates(c *gin.Context) {
	list, err := a.templates.List(c.Request.Context(), c.Param("type"), c.Query("theme"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *API) GetTemplate(c *gin.Context) {
	tpl, err := a.templates.Get(c.Request.Context(), c.Param("type"), c.Query("theme"), fileParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (a *API) CreateTemplate(c *gin.Context) {
	var in models.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: " + err.Error()})
		return
	}
	if in.FileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName is required"})
		return
	}
	tpl, err := a.templates.Create(c.Request.Context(), c.Param("type"), c.Query("theme"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// SaveTemplate replaces a template. A fileName in the body that differs from
// the one in the URL renames it; an empty one keeps the name.
func (a *API) SaveTemplate(c *gin.Context) {
	var in models.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: " + err.Error()})
		return
	}
	tpl, err := a.templates.Save(c.Request.Context(), c.Param("type"), c.Query("theme"), fileParam(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (a *API) DeleteTemplate(c *gin.Context) {
	if err := a.templates.Delete(c.Request.Context(), c.Param("type"), c.Query("theme"), fileParam(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// fileParam strips the leading slash gin keeps on catch-all parameters.
func fileParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("fileName"), "/")
}

func writeError(c *gin.Context, err error) {
	var verr *halcyon.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "fields": verr.Messages()})
	case errors.Is(err, halcyon.ErrFileExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, halcyon.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, halcyon.ErrUnknownDatasource),
		errors.Is(err, halcyon.ErrUnknownType),
		errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		ctxlog.FromContext(c.Request.Context()).Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
