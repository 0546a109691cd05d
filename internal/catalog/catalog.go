// Package catalog exposes the catalog-mutating operations of the remote
// importer. Every call runs inside the gateway lock and reports failure as a
// false or empty result instead of an error; callers decide whether to go on.
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BadgerOps/pimsync/internal/gateway"
	"github.com/BadgerOps/pimsync/internal/poll"
	"github.com/BadgerOps/pimsync/internal/remote"
)

// Remote operation names.
const (
	OpDeleteCatalog             = "DeleteCatalog"
	OpDeleteCatalogNode         = "DeleteCatalogNode"
	OpDeleteCatalogEntry        = "DeleteCatalogEntry"
	OpUpdateLinkEntityData      = "UpdateLinkEntityData"
	OpUpdateEntryRelations      = "UpdateEntryRelations"
	OpCheckAndMoveNodeIfNeeded  = "CheckAndMoveNodeIfNeeded"
	OpGetLinkEntityAssociations = "GetLinkEntityAssociationsForEntity"
	OpImportCatalogXML          = "ImportCatalogXml"
	OpImportUpdateCompleted     = "ImportUpdateCompleted"
	OpDeleteCompleted           = "DeleteCompleted"
)

// NodeDelete identifies a catalog node within a catalog.
type NodeDelete struct {
	CatalogNodeID int `json:"catalogNodeId"`
	CatalogID     int `json:"catalogId"`
}

// LinkEntityUpdate carries changed link-entity data.
type LinkEntityUpdate struct {
	LinkEntityID          string   `json:"linkEntityIdString"`
	LinkEntryDisplayName  string   `json:"linkEntryDisplayName"`
	LinkTypeID            string   `json:"linkTypeId"`
	LinkEntityDisplayName string   `json:"linkEntityDisplayName"`
	ParentIDs             []string `json:"parentIds"`
}

// RelationUpdate describes a change to an entry's relations or node placement.
type RelationUpdate struct {
	CatalogEntryID         string   `json:"catalogEntryIdString"`
	ChannelID              int      `json:"channelId"`
	CatalogNodeID          string   `json:"catalogNodeIdString"`
	ParentEntryID          string   `json:"parentEntryId"`
	ParentCatalogNodeID    string   `json:"parentCatalogNodeId"`
	LinkTypeID             string   `json:"linkTypeId"`
	RemoveFromChannelNodes []string `json:"removeFromChannelNodes"`
	LinkEntityIDsToRemove  []string `json:"linkEntityIdsToRemove"`
	IsRelation             bool     `json:"isRelation"`
}

// LinkAssociationQuery selects the associations of one link entity.
type LinkAssociationQuery struct {
	LinkTypeID   string `json:"linkTypeId"`
	LinkEntityID int    `json:"linkEntityId"`
}

// ImportCompleted notifies the platform that a catalog publish finished.
type ImportCompleted struct {
	CatalogName       string `json:"catalogName"`
	EventType         string `json:"eventType"`
	ResourcesIncluded bool   `json:"resourcesIncluded"`
}

// DeleteCompleted notifies the platform that a catalog delete finished.
type DeleteCompleted struct {
	CatalogName string `json:"catalogName"`
	EventType   string `json:"eventType"`
}

// Service runs catalog operations against one endpoint.
type Service struct {
	gateway *gateway.Gateway
	client  *remote.Client
	poller  *poll.Engine
	logger  *slog.Logger
}

// NewService creates a Service that polls catalog imports with
// poll.CatalogImportSchedule.
func NewService(gw *gateway.Gateway, client *remote.Client, logger *slog.Logger) *Service {
	return &Service{
		gateway: gw,
		client:  client,
		poller:  poll.NewEngine(client, poll.CatalogImportSchedule, logger),
		logger:  logger,
	}
}

// WithPoller replaces the poll engine used by ImportCatalog.
func (s *Service) WithPoller(p *poll.Engine) *Service {
	s.poller = p
	return s
}

// DeleteCatalog posts catalogID to OpDeleteCatalog.
func (s *Service) DeleteCatalog(ctx context.Context, catalogID int) bool {
	return s.post(ctx, OpDeleteCatalog, catalogID)
}

// DeleteCatalogNode posts a NodeDelete to OpDeleteCatalogNode.
func (s *Service) DeleteCatalogNode(ctx context.Context, nodeID, catalogID int) bool {
	return s.post(ctx, OpDeleteCatalogNode, NodeDelete{CatalogNodeID: nodeID, CatalogID: catalogID})
}

// DeleteCatalogEntry posts the entry code to OpDeleteCatalogEntry.
func (s *Service) DeleteCatalogEntry(ctx context.Context, code string) bool {
	return s.post(ctx, OpDeleteCatalogEntry, code)
}

// UpdateLinkEntityData posts update to OpUpdateLinkEntityData.
func (s *Service) UpdateLinkEntityData(ctx context.Context, update LinkEntityUpdate) bool {
	return s.post(ctx, OpUpdateLinkEntityData, update)
}

// UpdateEntryRelations posts update to OpUpdateEntryRelations.
func (s *Service) UpdateEntryRelations(ctx context.Context, update RelationUpdate) bool {
	return s.post(ctx, OpUpdateEntryRelations, update)
}

// CheckAndMoveNodeIfNeeded posts the node code to OpCheckAndMoveNodeIfNeeded.
func (s *Service) CheckAndMoveNodeIfNeeded(ctx context.Context, nodeCode string) bool {
	return s.post(ctx, OpCheckAndMoveNodeIfNeeded, nodeCode)
}

// ImportUpdateCompleted posts the publish notification to OpImportUpdateCompleted.
func (s *Service) ImportUpdateCompleted(ctx context.Context, n ImportCompleted) bool {
	return s.post(ctx, OpImportUpdateCompleted, n)
}

// DeleteCompleted posts the delete notification to OpDeleteCompleted.
func (s *Service) DeleteCompleted(ctx context.Context, n DeleteCompleted) bool {
	return s.post(ctx, OpDeleteCompleted, n)
}

// GetLinkEntityAssociations returns the entry codes associated with a link
// entity, or an empty slice when the lookup fails or the endpoint is disabled.
func (s *Service) GetLinkEntityAssociations(ctx context.Context, linkTypeID string, linkEntityID int) []string {
	codes := []string{}
	if !s.client.Enabled() {
		s.logger.Info("endpoint disabled, skipping operation", "operation", OpGetLinkEntityAssociations)
		return codes
	}

	query := LinkAssociationQuery{LinkTypeID: linkTypeID, LinkEntityID: linkEntityID}
	err := s.gateway.Do(ctx, OpGetLinkEntityAssociations, func(ctx context.Context) error {
		raw, err := s.client.Post(ctx, OpGetLinkEntityAssociations, query)
		if err != nil {
			return err
		}
		var out []string
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
		if out != nil {
			codes = out
		}
		return nil
	})
	if err != nil {
		s.logFailure(OpGetLinkEntityAssociations, err)
		return []string{}
	}
	return codes
}

// ImportCatalog submits a catalog import for the file at path and waits for
// the importer to finish. It returns true only when the import was accepted
// and completed without an ERROR status.
func (s *Service) ImportCatalog(ctx context.Context, path string) bool {
	if !s.client.Enabled() {
		s.logger.Info("endpoint disabled, skipping operation", "operation", OpImportCatalogXML, "path", path)
		return true
	}

	ok := false
	err := s.gateway.Do(ctx, OpImportCatalogXML, func(ctx context.Context) error {
		raw, err := s.client.Post(ctx, OpImportCatalogXML, path)
		if err != nil {
			return err
		}
		if !remote.DecodeBool(raw) {
			s.logger.Warn("catalog import not accepted by remote importer", "path", path)
			return nil
		}

		res, err := s.poller.Wait(ctx)
		if err != nil {
			return err
		}
		if err := res.Err(); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		s.logFailure(OpImportCatalogXML, err, "path", path)
		return false
	}
	return ok
}

func (s *Service) post(ctx context.Context, operation string, body any) bool {
	if !s.client.Enabled() {
		s.logger.Info("endpoint disabled, skipping operation", "operation", operation)
		return true
	}

	err := s.gateway.Do(ctx, operation, func(ctx context.Context) error {
		_, err := s.client.Post(ctx, operation, body)
		return err
	})
	if err != nil {
		s.logFailure(operation, err)
		return false
	}
	s.logger.Debug("catalog operation succeeded", "operation", operation)
	return true
}

func (s *Service) logFailure(operation string, err error, args ...any) {
	attrs := append([]any{"operation", operation, "endpoint", s.client.Endpoint().URL(operation), "error", err}, args...)
	s.logger.Error("catalog operation failed", attrs...)
}
