package models

// LinkKind identifies the recognized shape of a classified link
type LinkKind string

const (
	KindUnset         LinkKind = ""               // Zero value = unclassified
	KindTelegraphPage LinkKind = "telegraph-page" // https://telegra.ph/<slug>
	KindGraphPage     LinkKind = "graph-page"     // https://graph.org/<slug>
	KindChannelPost   LinkKind = "channel-post"   // https://t.me/c/<channel>/<message>
)

// String implements fmt.Stringer for logging
func (k LinkKind) String() string {
	if k == "" {
		return "unset"
	}
	return string(k)
}

// IsValid returns true if the kind is a recognized link shape
func (k LinkKind) IsValid() bool {
	switch k {
	case KindTelegraphPage, KindGraphPage, KindChannelPost:
		return true
	}
	return false
}

// IsPage returns true for kinds fetched through the page scraper
func (k LinkKind) IsPage() bool {
	return k == KindTelegraphPage || k == KindGraphPage
}

// StoreKind returns the coarse kind recorded in the ledger
func (k LinkKind) StoreKind() StoreKind {
	if k == KindChannelPost {
		return StoreKindChannelPost
	}
	return StoreKindPage
}

// StoreKind is the coarse link category persisted in ledger entries
type StoreKind string

const (
	StoreKindPage        StoreKind = "page"
	StoreKindChannelPost StoreKind = "channel-post"
)

// String implements fmt.Stringer for logging
func (k StoreKind) String() string {
	if k == "" {
		return "unset"
	}
	return string(k)
}
