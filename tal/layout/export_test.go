package layout

func init() {
	StrictStale = true
}
