package application

import (
	"github.com/matdesk/requisition-service/internal/domain"
)

// ToMaterialDTO projects a material. Prices are included only for
// elevated actors; applicants see stock levels without cost data.
func ToMaterialDTO(material *domain.Material, includePrices bool) *MaterialDTO {
	variants := make([]VariantDTO, 0, len(material.Variants))
	for i := range material.Variants {
		variants = append(variants, toVariantDTO(&material.Variants[i], includePrices))
	}

	return &MaterialDTO{
		ID:          material.ID.Hex(),
		MaterialNo:  material.MaterialNo,
		Name:        material.Name,
		Description: material.Description,
		Category:    material.Category,
		Unit:        material.Unit,
		Status:      string(material.Status),
		Version:     material.Version,
		TotalStock:  material.TotalStock,
		Variants:    variants,
		CreatedAt:   material.CreatedAt,
		UpdatedAt:   material.UpdatedAt,
	}
}

func toVariantDTO(variant *domain.Variant, includePrices bool) VariantDTO {
	dto := VariantDTO{
		VariantID:   variant.VariantID,
		Label:       variant.Label,
		Stock:       variant.Stock,
		SafetyStock: variant.SafetyStock,
		ImageURL:    variant.ImageURL,
		LowStock:    variant.IsLowStock(),
	}
	if includePrices {
		dto.CostPrice = int64Ptr(variant.CostPrice)
		dto.SalePrice = int64Ptr(variant.SalePrice)
	}
	return dto
}

// ToRequisitionDTO projects a requisition. Price snapshots and the total
// amount are included only for elevated actors.
func ToRequisitionDTO(requisition *domain.Requisition, includePrices bool) *RequisitionDTO {
	items := make([]RequisitionItemDTO, 0, len(requisition.Items))
	for i := range requisition.Items {
		items = append(items, toRequisitionItemDTO(&requisition.Items[i], includePrices))
	}

	dto := &RequisitionDTO{
		ID:            requisition.ID.Hex(),
		RequisitionNo: requisition.RequisitionNo,
		ApplicantID:   requisition.ApplicantID,
		ApplicantName: requisition.ApplicantName,
		Department:    requisition.Department,
		TicketRef:     requisition.TicketRef,
		Note:          requisition.Note,
		Items:         items,
		TotalQuantity: requisition.TotalQuantity,
		Status:        string(requisition.Status),
		CompletedTime: requisition.CompletedTime,
		CancelledTime: requisition.CancelledTime,
		CancelledBy:   requisition.CancelledBy,
		CancelReason:  requisition.CancelReason,
		CreatedAt:     requisition.CreatedAt,
	}
	if !requisition.CanCancelBefore.IsZero() {
		deadline := requisition.CanCancelBefore
		dto.CanCancelBefore = &deadline
	}
	if includePrices {
		dto.TotalAmount = int64Ptr(requisition.TotalAmount)
	}
	return dto
}

func toRequisitionItemDTO(item *domain.RequisitionItem, includePrices bool) RequisitionItemDTO {
	dto := RequisitionItemDTO{
		MaterialID:   item.MaterialID.Hex(),
		MaterialNo:   item.MaterialNo,
		Name:         item.Name,
		VariantID:    item.VariantID,
		VariantLabel: item.VariantLabel,
		Quantity:     item.Quantity,
	}
	if includePrices {
		dto.CostPrice = int64Ptr(item.CostPrice)
		dto.SalePrice = int64Ptr(item.SalePrice)
		dto.Subtotal = int64Ptr(item.Subtotal)
	}
	return dto
}

// ToMaterialLogDTO projects one ledger entry
func ToMaterialLogDTO(log *domain.MaterialLog) *MaterialLogDTO {
	return &MaterialLogDTO{
		ID:            log.ID.Hex(),
		MaterialID:    log.MaterialID.Hex(),
		MaterialNo:    log.MaterialNo,
		VariantID:     log.VariantID,
		Type:          string(log.Type),
		Quantity:      log.Quantity,
		BeforeStock:   log.BeforeStock,
		AfterStock:    log.AfterStock,
		RequisitionID: log.RequisitionID,
		TicketRef:     log.TicketRef,
		OperatorID:    log.OperatorID,
		OperatorName:  log.OperatorName,
		Reason:        log.Reason,
		CreatedAt:     log.CreatedAt,
	}
}

// ToMaterialLogDTOs projects a page of ledger entries
func ToMaterialLogDTOs(logs []*domain.MaterialLog) []*MaterialLogDTO {
	dtos := make([]*MaterialLogDTO, 0, len(logs))
	for _, log := range logs {
		dtos = append(dtos, ToMaterialLogDTO(log))
	}
	return dtos
}

// ToMaterialDTOs projects a page of materials
func ToMaterialDTOs(materials []*domain.Material, includePrices bool) []*MaterialDTO {
	dtos := make([]*MaterialDTO, 0, len(materials))
	for _, material := range materials {
		dtos = append(dtos, ToMaterialDTO(material, includePrices))
	}
	return dtos
}

// ToRequisitionDTOs projects a page of requisitions
func ToRequisitionDTOs(requisitions []*domain.Requisition, includePrices bool) []*RequisitionDTO {
	dtos := make([]*RequisitionDTO, 0, len(requisitions))
	for _, requisition := range requisitions {
		dtos = append(dtos, ToRequisitionDTO(requisition, includePrices))
	}
	return dtos
}

func int64Ptr(v int64) *int64 {
	return &v
}
