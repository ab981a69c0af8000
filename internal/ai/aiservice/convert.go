package aiservice

import (
	"fmt"

	"CyberGuard/internal/model"

	"google.golang.org/protobuf/types/known/structpb"
)

// AlertToStruct encodes the fields an analyst prompt needs.
func AlertToStruct(a model.Alert) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":          a.ID,
		"type":        a.AttackType.Slug(),
		"severity":    a.Severity.String(),
		"srcAddr":     a.SrcAddr,
		"targetAddr":  a.TargetAddr,
		"description": a.Description,
		"count":       float64(a.EvidenceCount),
		"timestamp":   float64(a.DetectedAt),
	})
}

// AlertFromStruct is the inverse of AlertToStruct.
func AlertFromStruct(s *structpb.Struct) (model.Alert, error) {
	f := s.GetFields()
	attack, err := model.ParseAttackType(f["type"].GetStringValue())
	if err != nil {
		return model.Alert{}, fmt.Errorf("invalid alert: %w", err)
	}
	sev, err := model.ParseSeverity(f["severity"].GetStringValue())
	if err != nil {
		return model.Alert{}, fmt.Errorf("invalid alert: %w", err)
	}
	return model.Alert{
		ID: f["id"].GetStringValue(),
		AlertCandidate: model.AlertCandidate{
			AttackType:    attack,
			Severity:      sev,
			SrcAddr:       f["srcAddr"].GetStringValue(),
			TargetAddr:    f["targetAddr"].GetStringValue(),
			Description:   f["description"].GetStringValue(),
			EvidenceCount: int(f["count"].GetNumberValue()),
			DetectedAt:    int64(f["timestamp"].GetNumberValue()),
		},
	}, nil
}
