package content

import (
	"time"

	"github.com/eldopolis/portal-core/types"
)

// Built-in last-resort dataset for category pages. Served only when the
// cache is cold and the document store is unreachable, so a section page
// never renders empty during an outage.
var fallbackNews = []types.NewsRecord{
	{
		ID:       "fallback-politica-1",
		Title:    "El Congreso debate la nueva ley de presupuesto",
		Subtitle: "La sesión continúa durante la tarde",
		Category: "Política",
		Tags:     []string{"congreso", "presupuesto"},
		Author:   "Redacción",
		Date:     "2025-01-15",
	},
	{
		ID:       "fallback-economia-1",
		Title:    "El dólar cerró estable tras una semana volátil",
		Subtitle: "Los analistas esperan calma para los próximos días",
		Category: "Economía",
		Tags:     []string{"dólar", "mercados"},
		Author:   "Redacción",
		Date:     "2025-01-15",
	},
	{
		ID:       "fallback-deportes-1",
		Title:    "La selección prepara el amistoso del viernes",
		Subtitle: "Entrenamiento a puertas cerradas",
		Category: "Deportes",
		Tags:     []string{"selección", "fútbol"},
		Author:   "Redacción",
		Date:     "2025-01-15",
	},
	{
		ID:       "fallback-sociedad-1",
		Title:    "Comienza la inscripción al ciclo lectivo",
		Subtitle: "Las escuelas reciben consultas desde hoy",
		Category: "Sociedad",
		Tags:     []string{"educación"},
		Author:   "Redacción",
		Date:     "2025-01-15",
	},
	{
		ID:       "fallback-internacionales-1",
		Title:    "Cumbre regional por el comercio exterior",
		Subtitle: "Los cancilleres se reúnen esta semana",
		Category: "Internacionales",
		Tags:     []string{"comercio", "región"},
		Author:   "Redacción",
		Date:     "2025-01-15",
	},
	{
		ID:       "fallback-cultura-1",
		Title:    "Abre la feria del libro con entrada gratuita",
		Subtitle: "Más de doscientos expositores",
		Category: "Cultura",
		Tags:     []string{"feria", "libros"},
		Author:   "Redacción",
		Date:     "2025-01-15",
	},
}

// fallbackForCategory returns the mock records matching the display-name
// category, timestamped at call time so downstream sorting stays stable.
func fallbackForCategory(category string, pageSize int, now time.Time) []types.NewsRecord {
	var out []types.NewsRecord
	for _, record := range fallbackNews {
		if record.Category != category {
			continue
		}
		record.Timestamp = now.UnixMilli()
		out = append(out, record)
		if pageSize > 0 && len(out) == pageSize {
			break
		}
	}
	return out
}
