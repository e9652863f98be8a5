package repository

import (
	"context"
	"encoding/json"

	"stayhub/internal/domain/registry"
)

type registryRepository struct {
	db DBTX
}

func NewRegistryRepository(db DBTX) RegistryRepository {
	return &registryRepository{db: db}
}

func (r *registryRepository) ListTemplates(ctx context.Context) ([]registry.CommandTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT command_name, target_service, topic, required_modules, aggregate_type, payload_schema, updated_at
        FROM command_templates
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []registry.CommandTemplate
	for rows.Next() {
		var (
			tpl     registry.CommandTemplate
			modules []byte
		)
		if err := rows.Scan(
			&tpl.CommandName,
			&tpl.TargetService,
			&tpl.Topic,
			&modules,
			&tpl.AggregateType,
			&tpl.PayloadSchema,
			&tpl.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(modules) > 0 {
			if err := json.Unmarshal(modules, &tpl.RequiredModules); err != nil {
				return nil, err
			}
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *registryRepository) ListRoutes(ctx context.Context) ([]registry.RouteOverride, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT tenant_id, command_name, target_service, topic, updated_at
        FROM command_routes
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []registry.RouteOverride
	for rows.Next() {
		var route registry.RouteOverride
		if err := rows.Scan(&route.TenantID, &route.CommandName, &route.TargetService, &route.Topic, &route.UpdatedAt); err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return routes, nil
}

func (r *registryRepository) ListFeatures(ctx context.Context) ([]registry.FeatureFlag, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT tenant_id, module, enabled, updated_at
        FROM tenant_features
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []registry.FeatureFlag
	for rows.Next() {
		var flag registry.FeatureFlag
		if err := rows.Scan(&flag.TenantID, &flag.Module, &flag.Enabled, &flag.UpdatedAt); err != nil {
			return nil, err
		}
		features = append(features, flag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return features, nil
}
