// Package handlers exposes the back-office API over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/catalog"
	"github.com/medispa/backoffice/internal/core/client"
	"github.com/medispa/backoffice/internal/core/consent"
	"github.com/medispa/backoffice/internal/core/ledger"
	"go.opentelemetry.io/otel/trace"
)

func APIMux(s *Server, tracer trace.Tracer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /clients", middlewareWeb(tracer, s.QueryClients))
	mux.Handle("POST /clients", middlewareWeb(tracer, s.CreateClient))
	mux.Handle("GET /clients/{id}", middlewareWeb(tracer, s.QueryClientByID))
	mux.Handle("PATCH /clients/{id}", middlewareWeb(tracer, s.UpdateClient))
	mux.Handle("GET /clients/{id}/balance", middlewareWeb(tracer, s.QueryBalance))

	mux.Handle("GET /clients/{id}/treatment-records", middlewareWeb(tracer, s.QueryTreatmentRecords))
	mux.Handle("POST /clients/{id}/treatment-records", middlewareWeb(tracer, s.CreateTreatmentRecord))

	mux.Handle("GET /clients/{id}/packages", middlewareWeb(tracer, s.QueryClientPackages))
	mux.Handle("POST /clients/{id}/packages", middlewareWeb(tracer, s.PurchasePackage))
	mux.Handle("PATCH /clients/{id}/packages/{pkgID}", middlewareWeb(tracer, s.AmendClientPackage))
	mux.Handle("DELETE /clients/{id}/packages/{pkgID}", middlewareWeb(tracer, s.CancelClientPackage))

	mux.Handle("GET /clients/{id}/consent-forms", middlewareWeb(tracer, s.QueryConsentForms))
	mux.Handle("POST /clients/{id}/consent-forms", middlewareWeb(tracer, s.CreateConsentForm))

	mux.Handle("GET /services", middlewareWeb(tracer, s.QueryServices))
	mux.Handle("POST /services", middlewareWeb(tracer, s.CreateService))
	mux.Handle("GET /services/{id}", middlewareWeb(tracer, s.QueryServiceByID))
	mux.Handle("PATCH /services/{id}", middlewareWeb(tracer, s.UpdateService))

	mux.Handle("GET /packages", middlewareWeb(tracer, s.QueryPackages))
	mux.Handle("POST /packages", middlewareWeb(tracer, s.CreatePackage))
	mux.Handle("GET /packages/{id}", middlewareWeb(tracer, s.QueryPackageByID))
	mux.Handle("PATCH /packages/{id}", middlewareWeb(tracer, s.UpdatePackage))
	mux.Handle("DELETE /packages/{id}", middlewareWeb(tracer, s.DeletePackage))

	return mux
}

type Server struct {
	log     *slog.Logger
	client  *client.Core
	catalog *catalog.Core
	ledger  *ledger.Core
	consent *consent.Core
}

func NewServer(log *slog.Logger, cl *client.Core, ct *catalog.Core, ld *ledger.Core, cs *consent.Core) *Server {
	return &Server{
		log:     log,
		client:  cl,
		catalog: ct,
		ledger:  ld,
		consent: cs,
	}
}

// =============================================================================
// Clients

func (s *Server) CreateClient(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, req ClientReq) (ClientResp, error) {
			nc := client.NewClient{
				Name:       req.Name,
				Email:      req.Email,
				Phone:      req.Phone,
				Gender:     req.Gender,
				DOB:        req.DOB,
				Occupation: req.Occupation,
				ReferredBy: req.ReferredBy,
				Consultant: req.Consultant,
				Notes:      req.Notes,
			}

			c, err := s.client.Create(ctx, nc)
			if err != nil {
				return ClientResp{}, err
			}

			return toClientResp(c), nil
		},
	)
}

func (s *Server) QueryClients(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) ([]ClientResp, error) {
			cs, err := s.client.Query(ctx, r.URL.Query().Get("search"))
			if err != nil {
				return nil, err
			}

			return toClientsResp(cs), nil
		},
	)
}

func (s *Server) QueryClientByID(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (ClientResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return ClientResp{}, err
			}

			c, err := s.client.QueryByID(ctx, id)
			if err != nil {
				return ClientResp{}, err
			}

			return toClientResp(c), nil
		},
	)
}

func (s *Server) UpdateClient(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, req ClientPatchReq) (ClientResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return ClientResp{}, err
			}

			uc := client.UpdateClient{
				Name:       req.Name,
				Email:      req.Email,
				Phone:      req.Phone,
				Gender:     req.Gender,
				DOB:        req.DOB,
				Occupation: req.Occupation,
				ReferredBy: req.ReferredBy,
				Consultant: req.Consultant,
				Notes:      req.Notes,
			}

			c, err := s.client.Update(ctx, id, uc)
			if err != nil {
				return ClientResp{}, err
			}

			return toClientResp(c), nil
		},
	)
}

func (s *Server) QueryBalance(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (BalanceResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return BalanceResp{}, err
			}

			balance, err := s.client.Balance(ctx, id)
			if err != nil {
				return BalanceResp{}, err
			}

			return BalanceResp{Balance: balance}, nil
		},
	)
}

// =============================================================================
// Treatment records

func (s *Server) CreateTreatmentRecord(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, req TreatmentRecordReq) (TreatmentRecordResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return TreatmentRecordResp{}, err
			}

			if req.TotalAmount == nil {
				return TreatmentRecordResp{}, fmt.Errorf("%w: total amount is required", ledger.ErrInvalidArgument)
			}

			rec, err := s.ledger.PostRecord(ctx, id, req.toNewRecord())
			if err != nil {
				return TreatmentRecordResp{}, err
			}

			return toTreatmentRecordResp(rec), nil
		},
	)
}

func (s *Server) QueryTreatmentRecords(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) ([]TreatmentRecordResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return nil, err
			}

			recs, err := s.ledger.QueryRecords(ctx, id)
			if err != nil {
				return nil, err
			}

			return toTreatmentRecordsResp(recs), nil
		},
	)
}

// =============================================================================
// Client packages

func (s *Server) PurchasePackage(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, req PurchasePackageReq) (PurchaseResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return PurchaseResp{}, err
			}

			if req.PackageID == uuid.Nil {
				return PurchaseResp{}, fmt.Errorf("%w: packageId is required", ledger.ErrInvalidArgument)
			}

			p, err := s.ledger.PurchasePackage(ctx, id, req.PackageID)
			if err != nil {
				return PurchaseResp{}, err
			}

			return toPurchaseResp(p), nil
		},
	)
}

func (s *Server) QueryClientPackages(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) ([]ClientPackageResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return nil, err
			}

			cps, err := s.ledger.QueryClientPackages(ctx, id)
			if err != nil {
				return nil, err
			}

			return toClientPackagesResp(cps), nil
		},
	)
}

func (s *Server) AmendClientPackage(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, req ClientPackagePatchReq) (ClientPackageResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return ClientPackageResp{}, err
			}
			pkgID, err := pathID(r, "pkgID")
			if err != nil {
				return ClientPackageResp{}, err
			}

			up := ledger.UpdateClientPackage{
				SessionsRemaining: req.SessionsRemaining,
				PurchaseDate:      req.PurchaseDate,
				IsActive:          req.IsActive,
			}

			cp, err := s.ledger.AmendClientPackage(ctx, id, pkgID, up)
			if err != nil {
				return ClientPackageResp{}, err
			}

			return toClientPackageResp(cp), nil
		},
	)
}

func (s *Server) CancelClientPackage(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (ClientPackageResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return ClientPackageResp{}, err
			}
			pkgID, err := pathID(r, "pkgID")
			if err != nil {
				return ClientPackageResp{}, err
			}

			cp, err := s.ledger.CancelPackage(ctx, id, pkgID)
			if err != nil {
				return ClientPackageResp{}, err
			}

			return toClientPackageResp(cp), nil
		},
	)
}

// =============================================================================
// Consent forms

func (s *Server) CreateConsentForm(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, req ConsentFormReq) (ConsentFormResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return ConsentFormResp{}, err
			}

			// Forms reference the client row, so a bad id must 404
			// before the insert hits the foreign key.
			if _, err := s.client.QueryByID(ctx, id); err != nil {
				return ConsentFormResp{}, err
			}

			nf := consent.NewForm{
				Type:      consent.FormType(req.Type),
				Signature: req.Signature,
				FormData:  req.FormData,
			}

			f, err := s.consent.Create(ctx, id, nf)
			if err != nil {
				return ConsentFormResp{}, err
			}

			return toConsentFormResp(f), nil
		},
	)
}

func (s *Server) QueryConsentForms(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) ([]ConsentFormResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return nil, err
			}

			fs, err := s.consent.QueryByClient(ctx, id)
			if err != nil {
				return nil, err
			}

			return toConsentFormsResp(fs), nil
		},
	)
}

// =============================================================================
// Services

func (s *Server) CreateService(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, req ServiceReq) (ServiceResp, error) {
			svc, err := s.catalog.CreateService(ctx, req.toNewService())
			if err != nil {
				return ServiceResp{}, err
			}

			return toServiceResp(svc), nil
		},
	)
}

func (s *Server) QueryServices(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) ([]ServiceResp, error) {
			q := r.URL.Query()
			filter := catalog.Filter{
				Category:   q.Get("category"),
				Search:     q.Get("search"),
				ActiveOnly: q.Get("activeOnly") == "true",
			}

			svcs, err := s.catalog.QueryServices(ctx, filter)
			if err != nil {
				return nil, err
			}

			return toServicesResp(svcs), nil
		},
	)
}

func (s *Server) QueryServiceByID(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (ServiceResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return ServiceResp{}, err
			}

			svc, err := s.catalog.QueryServiceByID(ctx, id)
			if err != nil {
				return ServiceResp{}, err
			}

			return toServiceResp(svc), nil
		},
	)
}

func (s *Server) UpdateService(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, req ServicePatchReq) (ServiceResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return ServiceResp{}, err
			}

			us := catalog.UpdateService{
				Name:        req.Name,
				Description: req.Description,
				Category:    req.Category,
				IsActive:    req.IsActive,
			}

			svc, err := s.catalog.UpdateService(ctx, id, us)
			if err != nil {
				return ServiceResp{}, err
			}

			return toServiceResp(svc), nil
		},
	)
}

// =============================================================================
// Package catalog

func (s *Server) CreatePackage(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, req PackageReq) (PackageResp, error) {
			np := catalog.NewPackage{
				ServiceID:     req.ServiceID,
				Name:          req.Name,
				Description:   req.Description,
				TotalSessions: req.TotalSessions,
				Price:         req.Price,
			}

			p, err := s.catalog.CreatePackage(ctx, np)
			if err != nil {
				return PackageResp{}, err
			}

			return toPackageResp(p), nil
		},
	)
}

func (s *Server) QueryPackages(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) ([]PackageResp, error) {
			ps, err := s.catalog.QueryPackages(ctx)
			if err != nil {
				return nil, err
			}

			return toPackagesResp(ps), nil
		},
	)
}

func (s *Server) QueryPackageByID(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (PackageResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return PackageResp{}, err
			}

			p, err := s.catalog.QueryPackageByID(ctx, id)
			if err != nil {
				return PackageResp{}, err
			}

			return toPackageResp(p), nil
		},
	)
}

func (s *Server) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, req PackagePatchReq) (PackageResp, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return PackageResp{}, err
			}

			up := catalog.UpdatePackage{
				Name:          req.Name,
				Description:   req.Description,
				TotalSessions: req.TotalSessions,
				Price:         req.Price,
				IsActive:      req.IsActive,
			}

			p, err := s.catalog.UpdatePackage(ctx, id, up)
			if err != nil {
				return PackageResp{}, err
			}

			return toPackageResp(p), nil
		},
	)
}

func (s *Server) DeletePackage(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusNoContent,
		func(ctx context.Context, _ struct{}) (struct{}, error) {
			id, err := pathID(r, "id")
			if err != nil {
				return struct{}{}, err
			}

			return struct{}{}, s.catalog.DeletePackage(ctx, id)
		},
	)
}

// =============================================================================

// errBadPath marks an unparsable path segment. It maps to 404, not
// 400: a malformed id addresses a resource that cannot exist.
var errBadPath = errors.New("invalid id in path")

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, errBadPath
	}
	return id, nil
}

type errorResp struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func newErrorResp(kind, message string) errorResp {
	var e errorResp
	e.Error.Kind = kind
	e.Error.Message = message
	return e
}

func errStatus(err error) (int, errorResp) {
	switch {
	case errors.Is(err, errBadPath),
		errors.Is(err, client.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, consent.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, newErrorResp("not_found", err.Error())

	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusBadRequest, newErrorResp("insufficient_balance", err.Error())

	case errors.Is(err, ledger.ErrDuplicatePackage):
		return http.StatusBadRequest, newErrorResp("duplicate_active_package", err.Error())

	case errors.Is(err, catalog.ErrPackageInUse):
		return http.StatusBadRequest, newErrorResp("package_in_use", err.Error())

	case errors.Is(err, client.ErrDuplicateEmail):
		return http.StatusBadRequest, newErrorResp("duplicate_email", err.Error())

	case errors.Is(err, client.ErrInvalidArgument),
		errors.Is(err, catalog.ErrInvalidArgument),
		errors.Is(err, consent.ErrInvalidArgument),
		errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusBadRequest, newErrorResp("invalid_argument", err.Error())

	default:
		return http.StatusInternalServerError, newErrorResp("internal", "internal error")
	}
}

func serveJSON[Req any, Resp any](
	w http.ResponseWriter,
	r *http.Request,
	s *Server,
	status int,
	fn func(ctx context.Context, req Req) (Resp, error),
) {
	var req Req
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		err := json.NewDecoder(r.Body).Decode(&req)
		r.Body.Close()
		if err != nil {
			s.log.Error("decoding json", "ERROR", err)
			writeJSON(w, s, http.StatusBadRequest, newErrorResp("invalid_argument", "malformed json body"))
			return
		}
	}

	resp, err := fn(r.Context(), req)
	if err != nil {
		s.log.Error("fn", "ERROR", err)
		code, body := errStatus(err)
		writeJSON(w, s, code, body)
		return
	}

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	writeJSON(w, s, status, resp)
}

func writeJSON(w http.ResponseWriter, s *Server, status int, v any) {
	bs, err := json.Marshal(v)
	if err != nil {
		s.log.Error("failed to encode response", "ERROR", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(bs)
}
