package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/internal/workflow"
	apperrors "github.com/vaidashi/apparel-order-pipeline/pkg/errors"
)

// DeleteConfirmation must be typed by the caller to delete orders
const DeleteConfirmation = "DELETE"

// StatusUpdateRequest is the body of PATCH /orders/{id}/status
type StatusUpdateRequest struct {
	Status models.OrderStatus `json:"status"`
	Notes  string             `json:"notes,omitempty"`
}

// NotesRequest carries optional free text
type NotesRequest struct {
	Notes string `json:"notes,omitempty"`
}

// LineItemsRequest is the body of PUT /orders/{id}/line-items
type LineItemsRequest struct {
	LineItems []models.LineItem `json:"lineItems"`
}

// ProgressRequest is the body of POST /orders/{id}/line-items/progress.
// An empty itemNumbers applies the step to every item.
type ProgressRequest struct {
	ItemNumbers []string              `json:"itemNumbers,omitempty"`
	Step        workflow.ProgressStep `json:"step"`
	Done        bool                  `json:"done"`
}

// ApprovalRequest is the body of PATCH /orders/{id}/approval
type ApprovalRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

// ArtRequest is the body of PATCH /orders/{id}/art
type ArtRequest struct {
	ArtStatus       models.ArtStatus       `json:"artStatus"`
	ArtConfirmation models.ArtConfirmation `json:"artConfirmation"`
}

// BypassRequest is the body of POST /orders/{id}/art/bypass
type BypassRequest struct {
	Reason string `json:"reason"`
}

// DeadOpportunityRequest is the body of POST /orders/{id}/dead-opportunity
type DeadOpportunityRequest struct {
	CreateLead bool `json:"createLead"`
}

// ArchiveRequest is the body of POST /orders/{id}/archive
type ArchiveRequest struct {
	Archived bool `json:"archived"`
}

// DeleteOrdersRequest is the body of DELETE /orders
type DeleteOrdersRequest struct {
	IDs          []string `json:"ids"`
	Confirmation string   `json:"confirmation"`
}

// getOrdersHandler lists orders; archived ones with ?includeArchived=true
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("includeArchived"))

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    s.orderService.List(includeArchived),
	})
}

// getBoardHandler returns the orders grouped by stage
func (s *Server) getBoardHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.orderService.Board()})
}

// createOrderHandler creates a new order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var fields workflow.OrderFields

	if err := decodeBody(r, &fields); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.CreateOrder(r.Context(), fields, currentUser(r))

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: order})
}

// getOrderByIDHandler returns an order by ID
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderService.Get(mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// getGateHandler reports what blocks the order from moving on
func (s *Server) getGateHandler(w http.ResponseWriter, r *http.Request) {
	gate, err := s.orderService.Gate(mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: gate})
}

// updateOrderStatusHandler moves an order to another stage
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req StatusUpdateRequest

	if err := decodeBody(r, &req); err != nil || req.Status == "" {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.AdvanceStage(r.Context(), mux.Vars(r)["id"], req.Status, currentUser(r), req.Notes)
	s.respondWithOrder(w, r, order, err)
}

// reopenOrderHandler returns a closed order to work
func (s *Server) reopenOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req NotesRequest

	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	order, err := s.orderService.ReopenOrder(r.Context(), mux.Vars(r)["id"], currentUser(r), req.Notes)
	s.respondWithOrder(w, r, order, err)
}

// deadOpportunityHandler closes an order as dead
func (s *Server) deadOpportunityHandler(w http.ResponseWriter, r *http.Request) {
	var req DeadOpportunityRequest

	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	res, err := s.orderService.MoveToDeadOpportunity(r.Context(), mux.Vars(r)["id"], req.CreateLead, currentUser(r))

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: res})
}

// updateLineItemsHandler replaces line items; ?reprice=true recomputes prices
func (s *Server) updateLineItemsHandler(w http.ResponseWriter, r *http.Request) {
	var req LineItemsRequest

	if err := decodeBody(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	reprice, _ := strconv.ParseBool(r.URL.Query().Get("reprice"))

	order, err := s.orderService.UpdateLineItems(r.Context(), mux.Vars(r)["id"], req.LineItems, reprice, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

// lineItemProgressHandler sets one production milestone
func (s *Server) lineItemProgressHandler(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest

	if err := decodeBody(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.SetLineItemProgress(r.Context(), mux.Vars(r)["id"], req.ItemNumbers, req.Step, req.Done, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) updateLeadInfoHandler(w http.ResponseWriter, r *http.Request) {
	var info models.LeadInfo

	if err := decodeBody(r, &info); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.UpdateLeadInfo(r.Context(), mux.Vars(r)["id"], info, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) updateContactHandler(w http.ResponseWriter, r *http.Request) {
	var contact workflow.Contact

	if err := decodeBody(r, &contact); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.UpdateContact(r.Context(), mux.Vars(r)["id"], contact, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) updateApprovalHandler(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest

	if err := decodeBody(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.SetCustomerApproval(r.Context(), mux.Vars(r)["id"], req.Approved, currentUser(r), req.Notes)
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) updateArtHandler(w http.ResponseWriter, r *http.Request) {
	var req ArtRequest

	if err := decodeBody(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.UpdateArtConfirmation(r.Context(), mux.Vars(r)["id"], req.ArtConfirmation, req.ArtStatus, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) bypassArtHandler(w http.ResponseWriter, r *http.Request) {
	var req BypassRequest

	if err := decodeBody(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.BypassArt(r.Context(), mux.Vars(r)["id"], req.Reason, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) updatePrepHandler(w http.ResponseWriter, r *http.Request) {
	var prep models.PrepStatus

	if err := decodeBody(r, &prep); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.UpdatePrepStatus(r.Context(), mux.Vars(r)["id"], prep, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) updateFulfillmentHandler(w http.ResponseWriter, r *http.Request) {
	var f models.Fulfillment

	if err := decodeBody(r, &f); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.UpdateFulfillment(r.Context(), mux.Vars(r)["id"], f, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) updateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	var inv models.InvoiceStatus

	if err := decodeBody(r, &inv); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.UpdateInvoiceStatus(r.Context(), mux.Vars(r)["id"], inv, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) updateCloseoutHandler(w http.ResponseWriter, r *http.Request) {
	var c models.CloseoutChecklist

	if err := decodeBody(r, &c); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := s.orderService.UpdateCloseoutChecklist(r.Context(), mux.Vars(r)["id"], c, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

func (s *Server) archiveHandler(w http.ResponseWriter, r *http.Request) {
	req := ArchiveRequest{Archived: true}

	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	order, err := s.orderService.SetArchived(r.Context(), mux.Vars(r)["id"], req.Archived, currentUser(r))
	s.respondWithOrder(w, r, order, err)
}

// deleteOrdersHandler permanently deletes orders. The body must carry the
// typed confirmation.
func (s *Server) deleteOrdersHandler(w http.ResponseWriter, r *http.Request) {
	var req DeleteOrdersRequest

	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Confirmation != DeleteConfirmation {
		s.respondWithServiceError(w, r, apperrors.NewInvalidInputError(`confirmation must be "`+DeleteConfirmation+`"`))
		return
	}

	removed, err := s.orderService.DeleteOrders(r.Context(), req.IDs, currentUser(r))

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]interface{}{"deleted": removed, "count": len(removed)},
	})
}

// priceBreakdownHandler prices one line item
func (s *Server) priceBreakdownHandler(w http.ResponseWriter, r *http.Request) {
	var item models.LineItem

	if err := decodeBody(r, &item); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.orderService.PriceBreakdown(item)})
}

func (s *Server) respondWithOrder(w http.ResponseWriter, r *http.Request, order models.Order, err error) {
	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}
