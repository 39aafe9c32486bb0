package gnomad

// GraphQL-Antwortstrukturen der gnomAD-API. Null-Werte lassen die Felder auf
// ihrem Zero-Value, Pointer markieren "nicht gemessen".

type graphQLResponse struct {
	Data   *responseData  `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type responseData struct {
	Gene *geneData `json:"gene"`
}

type geneData struct {
	GeneID     string      `json:"gene_id"`
	Symbol     string      `json:"symbol"`
	Variants   []variant   `json:"variants"`
	Constraint *constraint `json:"gnomad_constraint"`
}

type variant struct {
	VariantID   string      `json:"variant_id"`
	HGVSc       string      `json:"hgvsc"`
	HGVSp       string      `json:"hgvsp"`
	Consequence string      `json:"consequence"`
	Lof         string      `json:"lof"`
	LofFilter   string      `json:"lof_filter"`
	LofFlags    string      `json:"lof_flags"`
	Exome       *population `json:"exome"`
	Genome      *population `json:"genome"`
}

type population struct {
	AC              int64           `json:"ac"`
	AN              int64           `json:"an"`
	AF              *float64        `json:"af"`
	HomozygoteCount int64           `json:"homozygote_count"`
	Populations     []ancestryGroup `json:"populations"`
}

type ancestryGroup struct {
	ID string `json:"id"`
	AC int64  `json:"ac"`
	AN int64  `json:"an"`
}

type constraint struct {
	PLI        *float64 `json:"pLI"`
	OELofUpper *float64 `json:"oe_lof_upper"`
}
