package appwrite

import "encoding/json"

// Query is one Appwrite query clause. It marshals to the JSON query syntax
// accepted by the REST API (`queries[]=...`).
type Query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

func Equal(attribute string, values ...any) Query {
	return Query{Method: "equal", Attribute: attribute, Values: values}
}

func Search(attribute, term string) Query {
	return Query{Method: "search", Attribute: attribute, Values: []any{term}}
}

func OrderAsc(attribute string) Query {
	return Query{Method: "orderAsc", Attribute: attribute}
}

func OrderDesc(attribute string) Query {
	return Query{Method: "orderDesc", Attribute: attribute}
}

func Limit(n int) Query {
	return Query{Method: "limit", Values: []any{n}}
}

func Offset(n int) Query {
	return Query{Method: "offset", Values: []any{n}}
}

func (q Query) String() string {
	data, err := json.Marshal(q)
	if err != nil {
		// values are always plain scalars
		panic(err)
	}
	return string(data)
}
