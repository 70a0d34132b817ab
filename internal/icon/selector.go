package icon

// Priority lists icon types from most to least preferred. TypeIcon is absent:
// plain rel="icon" links are listed by FindIcons but never chosen as best.
var Priority = []Type{
	TypeShortcutIcon,
	TypeRootIcon,
	TypeAppleTouchIcon,
	TypeAppleTouchIconPrecomposed,
	TypeOpenGraph,
	TypeTwitter,
	TypeMSApplicationTileImage,
	TypeSecondLevelRootIcon,
	TypeIconImage,
}

// PickBestIcon returns the validated icon whose type ranks highest in
// Priority. When several icons share a type the last one in slice order wins.
func PickBestIcon(icons []ValidatedIcon) (ValidatedIcon, bool) {
	byType := make(map[Type]ValidatedIcon, len(icons))
	for _, ic := range icons {
		byType[ic.Type] = ic
	}
	for _, t := range Priority {
		if ic, ok := byType[t]; ok {
			return ic, true
		}
	}
	return ValidatedIcon{}, false
}
