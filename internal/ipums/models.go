package ipums

// ExtractRequest is the body submitted to the microdata extract API.
type ExtractRequest struct {
	Description   string                 `json:"description"`
	DataStructure DataStructure          `json:"dataStructure"`
	DataFormat    string                 `json:"dataFormat"`
	Samples       map[string]struct{}    `json:"samples"`
	Variables     map[string]VariableReq `json:"variables"`
}

// DataStructure selects rectangular person-level records.
type DataStructure struct {
	Rectangular Rectangular `json:"rectangular"`
}

type Rectangular struct {
	On string `json:"on"`
}

// VariableReq configures one requested variable. CaseSelections limits the
// extract to matching values, used for state filtering on STATEFIP.
type VariableReq struct {
	CaseSelections map[string][]string `json:"caseSelections,omitempty"`
}

// Extract is the API's view of a submitted extract.
type Extract struct {
	Number        int           `json:"number"`
	Status        string        `json:"status"`
	DownloadLinks DownloadLinks `json:"downloadLinks"`
}

// DownloadLinks holds the signed URLs of a completed extract.
type DownloadLinks struct {
	Data DownloadLink `json:"data"`
}

type DownloadLink struct {
	URL string `json:"url"`
}

// apiError is the error envelope the API returns on 4xx responses.
type apiError struct {
	Detail string `json:"detail"`
}
