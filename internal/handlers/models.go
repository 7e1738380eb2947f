package handlers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/core/catalog"
	"github.com/medispa/backoffice/internal/core/client"
	"github.com/medispa/backoffice/internal/core/consent"
	"github.com/medispa/backoffice/internal/core/ledger"
	"github.com/shopspring/decimal"
)

// Money fields use decimal.Decimal on both sides of the boundary: it
// unmarshals from numbers and strings and always marshals back as a
// quoted decimal string, so no amount ever rides in a float.

type ClientReq struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Gender     string     `json:"gender"`
	DOB        *time.Time `json:"dob"`
	Occupation string     `json:"occupation"`
	ReferredBy string     `json:"referredBy"`
	Consultant string     `json:"consultant"`
	Notes      string     `json:"notes"`
}

type ClientPatchReq struct {
	Name       *string    `json:"name"`
	Email      *string    `json:"email"`
	Phone      *string    `json:"phone"`
	Gender     *string    `json:"gender"`
	DOB        *time.Time `json:"dob"`
	Occupation *string    `json:"occupation"`
	ReferredBy *string    `json:"referredBy"`
	Consultant *string    `json:"consultant"`
	Notes      *string    `json:"notes"`
}

type ClientResp struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	Gender     string          `json:"gender,omitempty"`
	DOB        *time.Time      `json:"dob,omitempty"`
	Occupation string          `json:"occupation,omitempty"`
	ReferredBy string          `json:"referredBy,omitempty"`
	Consultant string          `json:"consultant,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func toClientResp(c client.Client) ClientResp {
	return ClientResp{
		ID:         c.ID,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		Gender:     c.Gender,
		DOB:        c.DOB,
		Occupation: c.Occupation,
		ReferredBy: c.ReferredBy,
		Consultant: c.Consultant,
		Notes:      c.Notes,
		Balance:    c.Balance,
		CreatedAt:  c.CreatedAt,
	}
}

func toClientsResp(cs []client.Client) []ClientResp {
	out := make([]ClientResp, len(cs))
	for i, c := range cs {
		out[i] = toClientResp(c)
	}
	return out
}

type BalanceResp struct {
	Balance decimal.Decimal `json:"balance"`
}

type TreatmentRecordReq struct {
	Date        time.Time        `json:"date"`
	Type        string           `json:"type"`
	TotalAmount *decimal.Decimal `json:"totalAmount"`
	StaffName   string           `json:"staffName"`
	Notes       string           `json:"notes"`
	Treatments  []TreatmentReq   `json:"treatments"`
	UsePackages *bool            `json:"usePackages"`
}

type TreatmentReq struct {
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	ServiceVariantID *uuid.UUID      `json:"serviceVariantId"`
}

func (req TreatmentRecordReq) toNewRecord() ledger.NewRecord {
	nr := ledger.NewRecord{
		Date:        req.Date,
		Type:        ledger.RecordType(req.Type),
		StaffName:   req.StaffName,
		Notes:       req.Notes,
		UsePackages: true,
	}
	if req.Type == "" {
		nr.Type = ledger.TypeTreatment
	}
	if req.TotalAmount != nil {
		nr.TotalAmount = *req.TotalAmount
	}
	if req.UsePackages != nil {
		nr.UsePackages = *req.UsePackages
	}
	for _, t := range req.Treatments {
		nr.Items = append(nr.Items, ledger.NewLineItem{
			Name:             t.Name,
			Price:            t.Price,
			ServiceVariantID: t.ServiceVariantID,
		})
	}
	return nr
}

type TreatmentRecordResp struct {
	ID           uuid.UUID       `json:"id"`
	ClientID     uuid.UUID       `json:"clientId"`
	Date         time.Time       `json:"date"`
	Type         string          `json:"type"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	StaffName    string          `json:"staffName,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Treatments   []TreatmentResp `json:"treatments,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type TreatmentResp struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	ServiceVariantID *uuid.UUID      `json:"serviceVariantId,omitempty"`
	ClientPackageID  *uuid.UUID      `json:"clientPackageId,omitempty"`
}

func toTreatmentRecordResp(r ledger.Record) TreatmentRecordResp {
	resp := TreatmentRecordResp{
		ID:           r.ID,
		ClientID:     r.ClientID,
		Date:         r.Date,
		Type:         string(r.Type),
		TotalAmount:  r.TotalAmount,
		BalanceAfter: r.BalanceAfter,
		StaffName:    r.StaffName,
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
	}
	for _, it := range r.Items {
		resp.Treatments = append(resp.Treatments, TreatmentResp{
			ID:               it.ID,
			Name:             it.Name,
			Price:            it.Price,
			ServiceVariantID: it.ServiceVariantID,
			ClientPackageID:  it.ClientPackageID,
		})
	}
	return resp
}

func toTreatmentRecordsResp(rs []ledger.Record) []TreatmentRecordResp {
	out := make([]TreatmentRecordResp, len(rs))
	for i, r := range rs {
		out[i] = toTreatmentRecordResp(r)
	}
	return out
}

type PurchasePackageReq struct {
	PackageID uuid.UUID `json:"packageId"`
}

type ClientPackageResp struct {
	ID                uuid.UUID       `json:"id"`
	ClientID          uuid.UUID       `json:"clientId"`
	PackageID         uuid.UUID       `json:"packageId"`
	PackageName       string          `json:"packageName"`
	ServiceID         uuid.UUID       `json:"serviceId"`
	ServiceName       string          `json:"serviceName"`
	SessionsRemaining int             `json:"sessionsRemaining"`
	TotalSessions     int             `json:"totalSessions"`
	Price             decimal.Decimal `json:"price"`
	PurchaseDate      time.Time       `json:"purchaseDate"`
	ExpiryDate        time.Time       `json:"expiryDate"`
	IsActive          bool            `json:"isActive"`
}

func toClientPackageResp(cp ledger.ClientPackage) ClientPackageResp {
	return ClientPackageResp{
		ID:                cp.ID,
		ClientID:          cp.ClientID,
		PackageID:         cp.PackageID,
		PackageName:       cp.PackageName,
		ServiceID:         cp.ServiceID,
		ServiceName:       cp.ServiceName,
		SessionsRemaining: cp.SessionsRemaining,
		TotalSessions:     cp.TotalSessions,
		Price:             cp.Price,
		PurchaseDate:      cp.PurchaseDate,
		ExpiryDate:        cp.ExpiryDate,
		IsActive:          cp.IsActive,
	}
}

func toClientPackagesResp(cps []ledger.ClientPackage) []ClientPackageResp {
	out := make([]ClientPackageResp, len(cps))
	for i, cp := range cps {
		out[i] = toClientPackageResp(cp)
	}
	return out
}

type PurchaseResp struct {
	ClientPackage   ClientPackageResp   `json:"clientPackage"`
	UpdatedBalance  decimal.Decimal     `json:"updatedBalance"`
	TreatmentRecord TreatmentRecordResp `json:"treatmentRecord"`
}

func toPurchaseResp(p ledger.Purchase) PurchaseResp {
	return PurchaseResp{
		ClientPackage:   toClientPackageResp(p.ClientPackage),
		UpdatedBalance:  p.Balance,
		TreatmentRecord: toTreatmentRecordResp(p.Record),
	}
}

type ClientPackagePatchReq struct {
	SessionsRemaining *int       `json:"sessionsRemaining"`
	PurchaseDate      *time.Time `json:"purchaseDate"`
	IsActive          *bool      `json:"isActive"`
}

type ServiceReq struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	IsActive    *bool        `json:"isActive"`
	Variants    []VariantReq `json:"variants"`
}

type VariantReq struct {
	Name     string          `json:"name"`
	Duration int             `json:"duration"`
	Price    decimal.Decimal `json:"price"`
}

func (req ServiceReq) toNewService() catalog.NewService {
	ns := catalog.NewService{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		IsActive:    true,
	}
	if req.IsActive != nil {
		ns.IsActive = *req.IsActive
	}
	for _, v := range req.Variants {
		ns.Variants = append(ns.Variants, catalog.NewVariant{
			Name:        v.Name,
			DurationMin: v.Duration,
			Price:       v.Price,
		})
	}
	return ns
}

type ServicePatchReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	IsActive    *bool   `json:"isActive"`
}

type ServiceResp struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Category    string        `json:"category"`
	IsActive    bool          `json:"isActive"`
	Variants    []VariantResp `json:"variants"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type VariantResp struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Duration int             `json:"duration"`
	Price    decimal.Decimal `json:"price"`
}

func toServiceResp(s catalog.Service) ServiceResp {
	resp := ServiceResp{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Category:    s.Category,
		IsActive:    s.IsActive,
		Variants:    []VariantResp{},
		CreatedAt:   s.CreatedAt,
	}
	for _, v := range s.Variants {
		resp.Variants = append(resp.Variants, VariantResp{
			ID:       v.ID,
			Name:     v.Name,
			Duration: v.DurationMin,
			Price:    v.Price,
		})
	}
	return resp
}

func toServicesResp(ss []catalog.Service) []ServiceResp {
	out := make([]ServiceResp, len(ss))
	for i, s := range ss {
		out[i] = toServiceResp(s)
	}
	return out
}

type PackageReq struct {
	ServiceID     uuid.UUID       `json:"serviceId"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	TotalSessions int             `json:"totalSessions"`
	Price         decimal.Decimal `json:"price"`
}

type PackagePatchReq struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	TotalSessions *int             `json:"totalSessions"`
	Price         *decimal.Decimal `json:"price"`
	IsActive      *bool            `json:"isActive"`
}

type PackageResp struct {
	ID            uuid.UUID       `json:"id"`
	ServiceID     uuid.UUID       `json:"serviceId"`
	ServiceName   string          `json:"serviceName"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	TotalSessions int             `json:"totalSessions"`
	Price         decimal.Decimal `json:"price"`
	IsActive      bool            `json:"isActive"`
	PurchaseCount int             `json:"purchaseCount"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func toPackageResp(p catalog.Package) PackageResp {
	return PackageResp{
		ID:            p.ID,
		ServiceID:     p.ServiceID,
		ServiceName:   p.ServiceName,
		Name:          p.Name,
		Description:   p.Description,
		TotalSessions: p.TotalSessions,
		Price:         p.Price,
		IsActive:      p.IsActive,
		PurchaseCount: p.PurchaseCount,
		CreatedAt:     p.CreatedAt,
	}
}

func toPackagesResp(ps []catalog.Package) []PackageResp {
	out := make([]PackageResp, len(ps))
	for i, p := range ps {
		out[i] = toPackageResp(p)
	}
	return out
}

type ConsentFormReq struct {
	Type      string          `json:"type"`
	Signature string          `json:"signature"`
	FormData  json.RawMessage `json:"formData"`
}

type ConsentFormResp struct {
	ID        uuid.UUID       `json:"id"`
	ClientID  uuid.UUID       `json:"clientId"`
	Type      string          `json:"type"`
	Signature string          `json:"signature"`
	FormData  json.RawMessage `json:"formData"`
	SignedAt  time.Time       `json:"signedAt"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toConsentFormResp(f consent.Form) ConsentFormResp {
	return ConsentFormResp{
		ID:        f.ID,
		ClientID:  f.ClientID,
		Type:      string(f.Type),
		Signature: f.Signature,
		FormData:  f.FormData,
		SignedAt:  f.SignedAt,
		CreatedAt: f.CreatedAt,
	}
}

func toConsentFormsResp(fs []consent.Form) []ConsentFormResp {
	out := make([]ConsentFormResp, len(fs))
	for i, f := range fs {
		out[i] = toConsentFormResp(f)
	}
	return out
}
