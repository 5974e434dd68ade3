package mailscheduler

type Organization struct {
	Id   int64  `json:"id"`
	Name string `json:"name"`
}
