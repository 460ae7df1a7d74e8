package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

// registerContactRoutes maps `/api/contacts` to contact_lists and
// `/api/broadcast-contacts` to the individual recipients within a list
// (spec §6.2's `contact_lists`/`broadcast_contacts` tables, §6.3's CRUD
// set naming).
func registerContactRoutes(r *gin.Engine, s *Server) {
	lists := r.Group("/api/contacts")
	lists.POST("", s.createContactList)
	lists.GET("", s.listContactLists)
	lists.GET("/:id", s.getContactList)
	lists.DELETE("/:id", s.deleteContactList)

	contacts := r.Group("/api/broadcast-contacts")
	contacts.POST("", s.addContact)
	contacts.POST("/import", s.importContacts)
	contacts.GET("", s.listContacts)
	contacts.DELETE("/:id", s.deleteContact)
}

type contactListRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

func (s *Server) createContactList(c *gin.Context) {
	var req contactListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" {
		fail(c, apperr.Validation{Msg: "name is required"})
		return
	}
	l := &models.ContactList{Name: req.Name, Description: req.Description, Source: req.Source}
	if err := s.store.ContactLists.CreateList(c.Request.Context(), l); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

func (s *Server) listContactLists(c *gin.Context) {
	lists, err := s.store.ContactLists.ListLists(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, lists)
}

func (s *Server) getContactList(c *gin.Context) {
	l, err := s.store.ContactLists.GetList(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	contacts, err := s.store.ContactLists.ListContacts(c.Request.Context(), l.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"list": l, "contacts": contacts})
}

func (s *Server) deleteContactList(c *gin.Context) {
	if err := s.store.ContactLists.DeleteList(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": true})
}

type addContactRequest struct {
	ListID   string `json:"list_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Tier     string `json:"tier"`
	IsActive bool   `json:"is_active"`
}

func (s *Server) addContact(c *gin.Context) {
	var req addContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	contact := &models.Contact{
		ListID: req.ListID, Name: req.Name, Phone: req.Phone,
		Email: req.Email, Tier: req.Tier, IsActive: req.IsActive,
	}
	if err := s.store.ContactLists.AddContact(c.Request.Context(), contact); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, contact)
}

// importContacts implements CSV bulk import for a list, multipart field
// "file" (spec §4.10 "On import (CSV or manual)").
func (s *Server) importContacts(c *gin.Context) {
	listID := c.PostForm("list_id")
	if listID == "" {
		fail(c, apperr.Validation{Msg: "list_id is required"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	f, err := file.Open()
	if err != nil {
		fail(c, apperr.Validation{Msg: "could not open uploaded file"})
		return
	}
	defer f.Close()

	count, err := s.store.ContactLists.ImportCSV(c.Request.Context(), listID, f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"imported": count})
}

func (s *Server) listContacts(c *gin.Context) {
	listID := c.Query("list_id")
	if listID == "" {
		fail(c, apperr.Validation{Msg: "list_id query parameter is required"})
		return
	}
	contacts, err := s.store.ContactLists.ListContacts(c.Request.Context(), listID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, contacts)
}

func (s *Server) deleteContact(c *gin.Context) {
	if err := s.store.ContactLists.DeleteContact(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": true})
}
