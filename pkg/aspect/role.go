// Package aspect maps resource identifiers to the roles they play within a
// logical article and to the canonical key that groups sibling resources.
package aspect

// Role names a function a resource serves within an article group. The set
// is open; the constants below are the names plugins commonly share.
type Role string

// Well-known roles.
const (
	RoleFullTextHTML           Role = "full-text-html"
	RoleFullTextPDF            Role = "full-text-pdf"
	RoleFullTextXML            Role = "full-text-xml"
	RoleFullTextPDFLandingPage Role = "full-text-pdf-landing-page"
	RoleAbstract               Role = "abstract"
	RoleArticleMetadata        Role = "article-metadata"
	RoleCitationRIS            Role = "citation-ris"
	RoleSupplementaryMaterials Role = "supplementary-materials"
)

// DefaultFullTextPriority is the tie-break order used when a plugin does not
// configure its own.
var DefaultFullTextPriority = []Role{
	RoleFullTextHTML,
	RoleFullTextPDF,
	RoleFullTextXML,
}

// WellKnown reports whether r is one of the predefined role names.
func (r Role) WellKnown() bool {
	switch r {
	case RoleFullTextHTML, RoleFullTextPDF, RoleFullTextXML, RoleFullTextPDFLandingPage,
		RoleAbstract, RoleArticleMetadata, RoleCitationRIS, RoleSupplementaryMaterials:
		return true
	}
	return false
}
