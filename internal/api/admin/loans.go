// loans.go implements admin handlers for loans: the cross-organization listing, force
// return, purge of returned records, and the spreadsheet export.
package admin

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seatdesk/seatdesk/internal/apperr"
	"github.com/seatdesk/seatdesk/internal/api/loans"
	"github.com/seatdesk/seatdesk/internal/ledger"
	"github.com/seatdesk/seatdesk/internal/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LoanHandlers handles loan administration endpoints
type LoanHandlers struct {
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewLoanHandlers creates a new LoanHandlers instance
func NewLoanHandlers(l *ledger.Ledger) *LoanHandlers {
	return &LoanHandlers{ledger: l, now: time.Now}
}

// loanFilter reads the listing filters shared by the JSON and spreadsheet endpoints
func loanFilter(c *gin.Context) (ledger.LoanFilter, bool) {
	f := ledger.LoanFilter{
		UserID:         c.Query("user_id"),
		LicenseID:      c.Query("license_id"),
		OrganizationID: c.Query("organization_id"),
		Status:         c.Query("status"),
	}
	if !loans.ValidStatusFilter(f.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of: active, returned, overdue"})
		return f, false
	}
	return f, true
}

// @Summary      List loans
// @Description  Loans across all organizations with overdue state derived at read time.
// @Tags         Loans
// @Security     Bearer
// @Produce      json
// @Param        status           query  string  false  "active, returned, or overdue"
// @Param        user_id          query  string  false  "User ID"
// @Param        license_id       query  string  false  "License ID"
// @Param        organization_id  query  string  false  "Organization ID"
// @Success      200  {array}   models.LoanDetail
// @Failure      400  {object}  map[string]interface{}  "Invalid status filter"
// @Router       /admin/loans [get]
// ListLoansHandler lists loans matching the query filters
func (h *LoanHandlers) ListLoansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, ok := loanFilter(c)
		if !ok {
			return
		}
		out, err := h.ledger.ListLoans(c.Request.Context(), filter)
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to list loans", err))
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary      Force-return a loan
// @Description  Return any active loan on behalf of its borrower. The acting admin is recorded on the loan.
// @Tags         Loans
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Loan ID"
// @Success      200  {object}  map[string]interface{}  "message, loan"
// @Failure      404  {object}  map[string]interface{}  "No active loan found"
// @Router       /admin/loans/{id}/force-return [post]
// ForceReturnHandler returns any active loan and records the acting admin
func (h *LoanHandlers) ForceReturnHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loan, err := h.ledger.Return(c.Request.Context(), ledger.ReturnRequest{
			LoanID:  c.Param("id"),
			ActorID: c.GetString(middleware.ContextUserID),
			Force:   true,
		})
		if err != nil {
			respondLedger(c, "Failed to return loan", err)
			return
		}
		middleware.AddAuditMetadata(c, "license_id", loan.LicenseID)
		middleware.AddAuditMetadata(c, "borrower_id", loan.UserID)
		c.JSON(http.StatusOK, gin.H{
			"message": "Loan returned",
			"loan":    loan,
		})
	}
}

// @Summary      Delete a loan record
// @Description  Only returned loans can be deleted.
// @Tags         Loans
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Loan ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Loan is still active"
// @Failure      404  {object}  map[string]interface{}  "Loan not found"
// @Router       /admin/loans/{id} [delete]
// PurgeLoanHandler deletes a returned loan record
func (h *LoanHandlers) PurgeLoanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.ledger.PurgeLoan(c.Request.Context(), c.Param("id")); err != nil {
			respondLedger(c, "Failed to delete loan", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Loan deleted successfully"})
	}
}

// @Summary      Export loans
// @Description  The filtered loan listing as an XLSX workbook.
// @Tags         Loans
// @Security     Bearer
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        status           query  string  false  "active, returned, or overdue"
// @Param        user_id          query  string  false  "User ID"
// @Param        license_id       query  string  false  "License ID"
// @Param        organization_id  query  string  false  "Organization ID"
// @Success      200  {file}    file
// @Failure      400  {object}  map[string]interface{}  "Invalid status filter"
// @Router       /admin/loans/export [get]
// ExportLoansHandler streams the filtered listing as an XLSX workbook
func (h *LoanHandlers) ExportLoansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, ok := loanFilter(c)
		if !ok {
			return
		}
		out, err := h.ledger.ListLoans(c.Request.Context(), filter)
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to list loans", err))
			return
		}

		data, err := loansWorkbook(out)
		if err != nil {
			apperr.Respond(c, apperr.Dependency("Failed to build export", err))
			return
		}

		filename := fmt.Sprintf("loans-%s.xlsx", h.now().UTC().Format("20060102"))
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK, xlsxContentType, data)
	}
}
