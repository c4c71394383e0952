// Package clock abstracts the passage of time for the wait package.
//
// Production code uses Real(), which reads the system clock and sleeps with
// a timer. Tests use Virtual(start), whose Sleep advances the clock by
// exactly the requested duration and returns at once, so timeout logic runs
// deterministically and without real delays.
package clock
