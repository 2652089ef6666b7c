package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"

	"synapse.app/ingest/internal/http/dto"
	"synapse.app/ingest/internal/model"
)

var (
	eventSchemaOnce sync.Once
	eventSchema     *jsonschema.Schema
)

// EventSchema reflects the JSON schema of the ingest request body, with the
// closed sets of source systems and event types as enums.
func EventSchema() *jsonschema.Schema {
	eventSchemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			DoNotReference: true,
			ExpandedStruct: true,
		}
		s := r.Reflect(&dto.IngestEventRequest{})
		s.Title = "CanonicalEvent"
		s.Required = []string{"timestamp", "source_system", "source_entity_id", "event_type", "payload"}

		if p, ok := s.Properties.Get("source_system"); ok {
			for _, src := range model.SourceSystems() {
				p.Enum = append(p.Enum, string(src))
			}
		}
		if p, ok := s.Properties.Get("event_type"); ok {
			for _, src := range model.SourceSystems() {
				for _, t := range model.EventTypes(src) {
					p.Enum = append(p.Enum, string(t))
				}
			}
		}
		if p, ok := s.Properties.Get("event_id"); ok {
			p.Format = "uuid"
		}
		if p, ok := s.Properties.Get("payload"); ok {
			p.Type = "object"
		}
		eventSchema = s
	})
	return eventSchema
}

func EventSchemaHandler(c *gin.Context) {
	c.JSON(http.StatusOK, EventSchema())
}
