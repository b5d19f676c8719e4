// Package export drives the research database's asynchronous export jobs.
//
// A job is created with [Client.Submit], which returns the job's status
// location. [Client.Poll] then requests that location once per interval
// until the server answers 200 with the finished archive:
//
//	job, err := c.Submit(ctx, []string{"Occupancy_Measurement"}, []string{"22", "11"})
//	resp, err := c.Poll(ctx, job)
//	defer resp.Body.Close()
//
// Polling has no built-in limit. Pass a context with a deadline to bound
// it; the wait between polls ends as soon as the context is done.
package export
